package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"comicd/internal/gateway"
	"comicd/internal/infra"
)

// ErrMissingClient indicates the poller was built without a status client.
var ErrMissingClient = errors.New("poller: status client is required")

// StatusClient is the slice of the gateway the poller needs.
type StatusClient interface {
	GetTaskStatus(ctx context.Context, taskID string) (*gateway.TaskStatus, error)
}

// Callbacks receive the outcome of a polling run. OnProgress fires on every
// successful status query; OnCompleted and OnFailed fire at most once per run
// and end it. Callbacks are invoked from the poller's goroutine. OnProgress
// runs while the poller's internal lock is held and must not call back into
// the poller.
type Callbacks struct {
	OnProgress  func(Snapshot)
	OnCompleted func(Snapshot)
	OnFailed    func(message string)
}

// Options configures a Poller.
type Options struct {
	Client   StatusClient
	Interval time.Duration
	Logger   *infra.Logger
}

// Poller repeatedly queries task status until a terminal condition and
// normalizes each response into a Snapshot. Start implicitly stops any
// previous run; a generation counter guarantees a superseded run can never
// deliver callbacks.
type Poller struct {
	client   StatusClient
	interval time.Duration
	logger   *infra.Logger

	mu             sync.Mutex
	generation     uint64
	cancel         context.CancelFunc
	maxProgress    int
	framesSignaled bool
	last           *Snapshot
}

// New constructs a Poller.
func New(opts Options) (*Poller, error) {
	if opts.Client == nil {
		return nil, ErrMissingClient
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Poller{
		client:   opts.Client,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start begins polling the task. Any previous run is stopped first and its
// callbacks become unreachable. The provided context bounds the run: when it
// is cancelled the run ends silently.
func (p *Poller) Start(ctx context.Context, taskID string, cb Callbacks) {
	p.mu.Lock()
	p.stopLocked()
	p.generation++
	gen := p.generation
	p.maxProgress = 0
	p.framesSignaled = false
	p.last = nil
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(runCtx, gen, taskID, cb)
}

// Stop ends the current run, if any. Idempotent and always safe to call. No
// OnProgress fires after Stop returns; a terminal callback that claimed the
// run before Stop was entered may still be completing.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Reset stops polling and clears retained progress state.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.maxProgress = 0
	p.framesSignaled = false
	p.last = nil
}

// Last returns the most recent snapshot of the current run.
func (p *Poller) Last() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Snapshot{}, false
	}
	return *p.last, true
}

// stopLocked invalidates the live generation so in-flight deliveries are
// dropped, then cancels the run context. Callers must hold p.mu.
func (p *Poller) stopLocked() {
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, taskID string, cb Callbacks) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if done := p.pollOnce(ctx, gen, taskID, cb); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce performs one status query and delivers the resulting callbacks.
// It returns true when the run must end.
func (p *Poller) pollOnce(ctx context.Context, gen uint64, taskID string, cb Callbacks) bool {
	status, err := p.client.GetTaskStatus(ctx, taskID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		// A single failed status query ends the run; restart/backoff is the
		// caller's decision.
		p.logger.Warn().Err(err).Str("task_id", taskID).Msg("poller: status query failed")
		if p.claim(gen, true) && cb.OnFailed != nil {
			cb.OnFailed("status query failed: " + err.Error())
		}
		return true
	}

	snapshot, live := p.deliver(gen, status, cb)
	if !live {
		return true
	}

	if snapshot.ShouldContinue {
		return false
	}

	if !p.claim(gen, true) {
		return true
	}
	switch snapshot.Status {
	case StatusCompleted:
		if cb.OnCompleted != nil {
			cb.OnCompleted(snapshot)
		}
	default:
		// Backend-reported failed and cancelled both surface as a failure;
		// the message carries the distinction.
		message := snapshot.Message
		if message == "" {
			message = "task " + snapshot.Status
		}
		if cb.OnFailed != nil {
			cb.OnFailed(message)
		}
	}
	return true
}

// deliver converts a raw status payload into a Snapshot, clamping progress
// to the running maximum and raising the one-shot frame extraction signal,
// then invokes OnProgress while still holding the lock so a Stop that has
// returned can never be followed by a progress delivery. It reports false
// when the run has been superseded.
func (p *Poller) deliver(gen uint64, status *gateway.TaskStatus, cb Callbacks) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return Snapshot{}, false
	}

	progress := status.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < p.maxProgress {
		p.logger.Warn().
			Str("task_id", status.TaskID).
			Int("reported", status.Progress).
			Int("clamped", p.maxProgress).
			Msg("poller: backend progress regressed")
		progress = p.maxProgress
	}
	p.maxProgress = progress

	snapshot := Snapshot{
		Status:         status.Status,
		Progress:       progress,
		Message:        status.Message,
		Stage:          status.Stage,
		ShouldContinue: !IsTerminal(status.Status),
	}
	if framesAvailable(status.Stage) && !p.framesSignaled {
		p.framesSignaled = true
		snapshot.ShouldExtractFrames = true
	}
	if snapshot.ShouldContinue && progress >= earlyExtractionThreshold {
		snapshot.ShouldTryEarlyExtraction = true
	}
	p.last = &snapshot

	if cb.OnProgress != nil {
		cb.OnProgress(snapshot)
	}
	return snapshot, true
}

// claim checks the run is still live; when endRun is set it also tears the
// run down so no later delivery can occur.
func (p *Poller) claim(gen uint64, endRun bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return false
	}
	if endRun {
		p.generation++
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
	}
	return true
}
