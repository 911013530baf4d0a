package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"comicd/internal/domain"
	"comicd/internal/gateway"
	"comicd/internal/infra"
	"comicd/internal/poller"
)

// Progress weighting across pipeline phases. Frame extraction and kickoff are
// fast relative to the model-driven generation work tracked by polling, so
// polling occupies the widest band.
const (
	progressAfterExtraction = 0.3
	progressAfterKickoff    = 0.4
	progressPollBand        = 0.5
	progressFetchingResult  = 0.9
	progressDone            = 1.0
)

// cancelNotifyTimeout bounds the best-effort remote cancel request.
const cancelNotifyTimeout = 5 * time.Second

// GenerationGateway is the slice of the backend client the coordinator needs.
type GenerationGateway interface {
	ExtractBaseFrames(ctx context.Context, taskID string, interval float64) (*gateway.BaseFrameExtraction, error)
	StartComicGeneration(ctx context.Context, task domain.GenerationTask) (*gateway.StartAck, error)
	GetComicResult(ctx context.Context, taskID string) (*gateway.ComicResultResponse, error)
	CancelTask(ctx context.Context, taskID string) (*gateway.Ack, error)
}

// ProgressPoller drives repeated status queries for the generation phase.
type ProgressPoller interface {
	Start(ctx context.Context, taskID string, cb poller.Callbacks)
	Stop()
	Reset()
}

// Callbacks observe one generation run. They may be invoked from internal
// goroutines; a run that has been cancelled or reset never fires them again.
type Callbacks struct {
	OnStatusChanged       func(domain.GenerationStatus)
	OnProgress            func(float64)
	OnBaseFramesExtracted func(paths []string)
	OnCompleted           func(result *domain.ComicResult)
	OnFailed              func(message string)
}

// Options configures a Coordinator.
type Options struct {
	Gateway      GenerationGateway
	Poller       ProgressPoller
	Logger       *infra.Logger
	DeviceID     domain.DeviceIDProvider
	AssetBaseURL string
}

// State is a consistent snapshot of the coordinator's externally visible
// fields.
type State struct {
	TaskID       string
	Status       domain.GenerationStatus
	Progress     float64
	ErrorMessage string
	Result       *domain.ComicResult
}

// Coordinator drives the full comic generation pipeline: base frame
// extraction, generation kickoff, progress polling, result fetch and
// conversion. All state mutations funnel through a single mutex, and a run
// counter suppresses callbacks from superseded or cancelled runs.
type Coordinator struct {
	gw           GenerationGateway
	poller       ProgressPoller
	logger       *infra.Logger
	deviceID     domain.DeviceIDProvider
	assetBaseURL string

	mu         sync.Mutex
	run        uint64
	cancel     context.CancelFunc
	taskID     string
	status     domain.GenerationStatus
	progress   float64
	errMessage string
	result     *domain.ComicResult
}

// New constructs a Coordinator in the idle state.
func New(opts Options) (*Coordinator, error) {
	if opts.Gateway == nil {
		return nil, errors.New("coordinator: gateway is required")
	}
	if opts.Poller == nil {
		return nil, errors.New("coordinator: poller is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Coordinator{
		gw:           opts.Gateway,
		poller:       opts.Poller,
		logger:       logger,
		deviceID:     opts.DeviceID,
		assetBaseURL: opts.AssetBaseURL,
		status:       domain.StatusIdle,
	}, nil
}

// State returns a consistent snapshot of the coordinator.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		TaskID:       c.taskID,
		Status:       c.status,
		Progress:     c.progress,
		ErrorMessage: c.errMessage,
		Result:       c.result,
	}
}

// StartCompleteGeneration begins the full pipeline for the task. It returns
// an error when the task is invalid or a run is already active; the pipeline
// itself reports through the callbacks. The run outlives ctx cancellation of
// the caller only in values, not lifetime: cancelling the coordinator is done
// via CancelGeneration or Reset.
func (c *Coordinator) StartCompleteGeneration(ctx context.Context, task domain.GenerationTask, cb Callbacks) error {
	if err := task.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.status.Active() {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	c.run++
	rn := c.run
	c.taskID = task.TaskID
	c.status = domain.StatusExtractingBaseFrames
	c.progress = 0
	c.errMessage = ""
	c.result = nil
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info().
		Str("task_id", task.TaskID).
		Str("story_style", task.Config.StoryStyle).
		Msg("coordinator: generation started")
	if cb.OnStatusChanged != nil {
		cb.OnStatusChanged(domain.StatusExtractingBaseFrames)
	}

	go c.pipeline(runCtx, rn, task, cb)
	return nil
}

// CancelGeneration stops the active run: polling halts, the run context is
// cancelled, state becomes cancelled, and no further callbacks fire, not
// even for requests already in flight. The backend is told to abandon the
// task on a best-effort basis.
func (c *Coordinator) CancelGeneration(ctx context.Context) {
	c.mu.Lock()
	if !c.status.Active() {
		c.mu.Unlock()
		return
	}
	taskID := c.taskID
	c.run++ // suppress all in-flight deliveries
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status = domain.StatusCancelled
	c.mu.Unlock()

	c.poller.Stop()
	c.logger.Info().Str("task_id", taskID).Msg("coordinator: generation cancelled")

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNotifyTimeout)
	defer cancel()
	if _, err := c.gw.CancelTask(notifyCtx, taskID); err != nil {
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("coordinator: backend cancel failed")
	}
}

// Reset returns the coordinator to idle, clearing progress, error and result.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.run++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.taskID = ""
	c.status = domain.StatusIdle
	c.progress = 0
	c.errMessage = ""
	c.result = nil
	c.mu.Unlock()

	c.poller.Reset()
}

// TryEarlyBaseFrameExtraction attempts an opportunistic frame fetch before
// the main task signals readiness. Best effort: any failure is swallowed and
// reported as an empty result.
func (c *Coordinator) TryEarlyBaseFrameExtraction(ctx context.Context, taskID string, interval float64) []string {
	res, err := c.gw.ExtractBaseFrames(ctx, taskID, interval)
	if err != nil || res == nil || !res.Success {
		c.logger.Debug().Str("task_id", taskID).Msg("coordinator: early extraction unavailable")
		return nil
	}
	return res.FramePaths()
}

func (c *Coordinator) pipeline(ctx context.Context, rn uint64, task domain.GenerationTask, cb Callbacks) {
	extraction, err := c.gw.ExtractBaseFrames(ctx, task.TaskID, task.Config.FrameInterval)
	if err != nil {
		c.fail(rn, cb, "base frame extraction failed: "+err.Error())
		return
	}
	if !extraction.Success {
		message := extraction.Message
		if message == "" {
			message = "base frame extraction rejected"
		}
		c.fail(rn, cb, message)
		return
	}

	if !c.setProgress(rn, cb, progressAfterExtraction) {
		return
	}
	if !c.transition(rn, cb, domain.StatusGeneratingComic) {
		return
	}
	if cb.OnBaseFramesExtracted != nil && c.live(rn) {
		cb.OnBaseFramesExtracted(extraction.FramePaths())
	}

	ack, err := c.gw.StartComicGeneration(ctx, task)
	if err != nil {
		c.fail(rn, cb, "generation kickoff failed: "+err.Error())
		return
	}
	if !ack.Success {
		message := ack.Message
		if message == "" {
			message = "generation kickoff rejected"
		}
		c.fail(rn, cb, message)
		return
	}
	if !c.setProgress(rn, cb, progressAfterKickoff) {
		return
	}

	c.poller.Start(ctx, task.TaskID, poller.Callbacks{
		OnProgress: func(snap poller.Snapshot) {
			overall := progressAfterKickoff + float64(snap.Progress)/100*progressPollBand
			c.setProgress(rn, cb, overall)
		},
		OnCompleted: func(poller.Snapshot) {
			c.finish(ctx, rn, task, cb)
		},
		OnFailed: func(message string) {
			c.fail(rn, cb, message)
		},
	})
}

// finish fetches and converts the final result after polling reported a
// terminal completed status.
func (c *Coordinator) finish(ctx context.Context, rn uint64, task domain.GenerationTask, cb Callbacks) {
	if !c.setProgress(rn, cb, progressFetchingResult) {
		return
	}

	resp, err := c.gw.GetComicResult(ctx, task.TaskID)
	if err != nil {
		c.fail(rn, cb, "result fetch failed: "+err.Error())
		return
	}

	deviceID := ""
	if c.deviceID != nil {
		if id, err := c.deviceID.DeviceID(); err == nil {
			deviceID = id
		}
	}
	result, err := convertResult(resp, c.assetBaseURL, deviceID)
	if err != nil {
		c.fail(rn, cb, "result conversion failed: "+err.Error())
		return
	}

	c.mu.Lock()
	if rn != c.run {
		c.mu.Unlock()
		return
	}
	c.status = domain.StatusCompleted
	c.progress = progressDone
	c.result = result
	c.mu.Unlock()

	c.logger.Info().
		Str("task_id", task.TaskID).
		Str("comic_id", result.ComicID).
		Int("panels", result.PanelCount).
		Msg("coordinator: generation completed")

	if cb.OnStatusChanged != nil {
		cb.OnStatusChanged(domain.StatusCompleted)
	}
	if cb.OnProgress != nil {
		cb.OnProgress(progressDone)
	}
	if cb.OnCompleted != nil {
		cb.OnCompleted(result)
	}
}

// fail terminates the run with a failure message. Loses the race silently if
// the run was cancelled or superseded.
func (c *Coordinator) fail(rn uint64, cb Callbacks, message string) {
	c.mu.Lock()
	if rn != c.run {
		c.mu.Unlock()
		return
	}
	c.status = domain.StatusFailed
	c.errMessage = message
	taskID := c.taskID
	c.mu.Unlock()

	c.poller.Stop()
	c.logger.Warn().Str("task_id", taskID).Str("reason", message).Msg("coordinator: generation failed")

	if cb.OnStatusChanged != nil {
		cb.OnStatusChanged(domain.StatusFailed)
	}
	if cb.OnFailed != nil {
		cb.OnFailed(message)
	}
}

// transition moves to the given status if the run is still live.
func (c *Coordinator) transition(rn uint64, cb Callbacks, status domain.GenerationStatus) bool {
	c.mu.Lock()
	if rn != c.run {
		c.mu.Unlock()
		return false
	}
	c.status = status
	c.mu.Unlock()

	if cb.OnStatusChanged != nil {
		cb.OnStatusChanged(status)
	}
	return true
}

// setProgress raises overall progress, never lowering it, and reports the
// new value. Returns false when the run is no longer live.
func (c *Coordinator) setProgress(rn uint64, cb Callbacks, value float64) bool {
	c.mu.Lock()
	if rn != c.run {
		c.mu.Unlock()
		return false
	}
	if value > c.progress {
		c.progress = value
	}
	value = c.progress
	c.mu.Unlock()

	if cb.OnProgress != nil {
		cb.OnProgress(value)
	}
	return true
}

// live reports whether the run is still current.
func (c *Coordinator) live(rn uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rn == c.run
}
