package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"comicd/internal/gateway"
)

func TestPollingHappyPath(t *testing.T) {
	client := newScriptedClient()
	client.script("t1",
		step(processing(10, StageFrameExtraction, "extracting")),
		step(processing(60, StageImageGeneration, "stylizing")),
		step(completed(100, "done")),
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())

	snap := rec.waitCompleted(t)
	if snap.Progress != 100 {
		t.Fatalf("final progress = %d, want 100", snap.Progress)
	}
	if rec.failedCount() != 0 {
		t.Fatalf("unexpected OnFailed")
	}
	if rec.completedCount() != 1 {
		t.Fatalf("OnCompleted fired %d times", rec.completedCount())
	}

	progresses := rec.progressValues()
	if len(progresses) < 3 {
		t.Fatalf("progress events = %d, want >= 3", len(progresses))
	}
	for i := 1; i < len(progresses); i++ {
		if progresses[i] < progresses[i-1] {
			t.Fatalf("progress regressed: %v", progresses)
		}
	}
}

func TestProgressClampedToRunningMax(t *testing.T) {
	client := newScriptedClient()
	client.script("t1",
		step(processing(80, StageImageGeneration, "")),
		step(processing(55, StageImageGeneration, "")),
		step(completed(100, "")),
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitCompleted(t)

	progresses := rec.progressValues()
	for _, v := range progresses {
		if v < 80 && v != progresses[0] {
			t.Fatalf("regressed value surfaced: %v", progresses)
		}
	}
	for i := 1; i < len(progresses); i++ {
		if progresses[i] < progresses[i-1] {
			t.Fatalf("progress not monotonic: %v", progresses)
		}
	}
}

func TestNetworkErrorEndsRunWithFailure(t *testing.T) {
	client := newScriptedClient()
	client.script("t1", statusStep{err: errors.New("connection refused")})
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())

	msg := rec.waitFailed(t)
	if msg == "" {
		t.Fatalf("expected failure message")
	}
	if rec.completedCount() != 0 {
		t.Fatalf("OnCompleted must not fire after failure")
	}
	if rec.failedCount() != 1 {
		t.Fatalf("OnFailed fired %d times", rec.failedCount())
	}
}

func TestTerminalFailedSurfacesBackendMessage(t *testing.T) {
	client := newScriptedClient()
	client.script("t1",
		step(processing(20, "", "")),
		step(&gateway.TaskStatus{TaskID: "t1", Status: StatusFailed, Message: "scene detection failed", Progress: 20}),
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())

	if msg := rec.waitFailed(t); msg != "scene detection failed" {
		t.Fatalf("failure message = %q", msg)
	}
}

func TestFrameSignalFiresExactlyOnce(t *testing.T) {
	client := newScriptedClient()
	client.script("t1",
		step(processing(10, StageFrameExtraction, "")),
		step(processing(35, StageBaseFramesComplete, "")),
		step(processing(70, StageStoryGeneration, "")),
		step(completed(100, "")),
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitCompleted(t)

	signals := 0
	for _, snap := range rec.snapshots() {
		if snap.ShouldExtractFrames {
			signals++
		}
	}
	if signals != 1 {
		t.Fatalf("ShouldExtractFrames fired %d times, want 1", signals)
	}
}

func TestEarlyExtractionHint(t *testing.T) {
	client := newScriptedClient()
	client.script("t1",
		step(processing(30, StageFrameExtraction, "")),
		step(processing(65, StageStoryGeneration, "")),
		step(completed(100, "")),
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitCompleted(t)

	snaps := rec.snapshots()
	if snaps[0].ShouldTryEarlyExtraction {
		t.Fatalf("hint should not fire below threshold")
	}
	var hinted bool
	for _, snap := range snaps {
		if snap.ShouldContinue && snap.Progress >= 50 && snap.ShouldTryEarlyExtraction {
			hinted = true
		}
		if !snap.ShouldContinue && snap.ShouldTryEarlyExtraction {
			t.Fatalf("hint must not fire on terminal snapshot")
		}
	}
	if !hinted {
		t.Fatalf("expected early extraction hint past threshold")
	}
}

func TestRestartAbandonsPreviousRun(t *testing.T) {
	client := newScriptedClient()
	gate := make(chan struct{})
	client.script("t1",
		step(processing(10, "", "first run")),
		statusStep{status: completed(100, "late completion"), wait: gate},
	)
	client.script("t2", step(completed(100, "second run")))

	p := newTestPoller(t, client)
	first := newRecorder()
	second := newRecorder()

	p.Start(context.Background(), "t1", first.callbacks())
	first.waitProgress(t)

	p.Start(context.Background(), "t2", second.callbacks())
	second.waitCompleted(t)

	close(gate)
	time.Sleep(20 * time.Millisecond)

	if first.completedCount() != 0 || first.failedCount() != 0 {
		t.Fatalf("abandoned run delivered a terminal callback")
	}
}

func TestStopIsIdempotentAndSilencing(t *testing.T) {
	client := newScriptedClient()
	gate := make(chan struct{})
	client.script("t1",
		step(processing(10, "", "")),
		statusStep{status: completed(100, ""), wait: gate},
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Stop() // not polling yet: must be safe

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitProgress(t)

	p.Stop()
	p.Stop()
	close(gate)
	time.Sleep(20 * time.Millisecond)

	if rec.completedCount() != 0 {
		t.Fatalf("callback fired after Stop")
	}
}

func TestStopSuppressesProgressOfInFlightQuery(t *testing.T) {
	client := newScriptedClient()
	gate := make(chan struct{})
	client.script("t1",
		step(processing(10, "", "")),
		statusStep{status: processing(60, "", ""), wait: gate},
	)
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitProgress(t)
	before := len(rec.progressValues())

	// The second status query is blocked on the gate when Stop returns;
	// releasing it afterwards must not surface another progress event.
	p.Stop()
	close(gate)
	time.Sleep(20 * time.Millisecond)

	if got := len(rec.progressValues()); got != before {
		t.Fatalf("OnProgress fired after Stop returned: %d -> %d events", before, got)
	}
	if rec.completedCount() != 0 || rec.failedCount() != 0 {
		t.Fatalf("terminal callback fired after Stop")
	}
}

func TestResetClearsRetainedState(t *testing.T) {
	client := newScriptedClient()
	client.script("t1", step(completed(100, "")))
	p := newTestPoller(t, client)
	rec := newRecorder()

	p.Start(context.Background(), "t1", rec.callbacks())
	rec.waitCompleted(t)

	if _, ok := p.Last(); !ok {
		t.Fatalf("expected retained snapshot before reset")
	}
	p.Reset()
	if _, ok := p.Last(); ok {
		t.Fatalf("expected no snapshot after reset")
	}
}

func newTestPoller(t *testing.T, client StatusClient) *Poller {
	t.Helper()
	p, err := New(Options{Client: client, Interval: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func processing(progress int, stage, message string) *gateway.TaskStatus {
	return &gateway.TaskStatus{
		Success:  true,
		TaskID:   "t1",
		Status:   StatusProcessing,
		Progress: progress,
		Stage:    stage,
		Message:  message,
	}
}

func completed(progress int, message string) *gateway.TaskStatus {
	return &gateway.TaskStatus{
		Success:  true,
		TaskID:   "t1",
		Status:   StatusCompleted,
		Progress: progress,
		Message:  message,
	}
}

type statusStep struct {
	status *gateway.TaskStatus
	err    error
	wait   chan struct{}
}

func step(status *gateway.TaskStatus) statusStep {
	return statusStep{status: status}
}

// scriptedClient replays a fixed sequence of status responses per task,
// repeating the final step once the script is exhausted.
type scriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]statusStep
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{scripts: map[string][]statusStep{}}
}

func (c *scriptedClient) script(taskID string, steps ...statusStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[taskID] = steps
}

func (c *scriptedClient) GetTaskStatus(ctx context.Context, taskID string) (*gateway.TaskStatus, error) {
	c.mu.Lock()
	steps := c.scripts[taskID]
	var next statusStep
	if len(steps) == 0 {
		c.mu.Unlock()
		return nil, errors.New("no script for task " + taskID)
	}
	next = steps[0]
	if len(steps) > 1 {
		c.scripts[taskID] = steps[1:]
	}
	c.mu.Unlock()

	if next.wait != nil {
		select {
		case <-next.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.status, nil
}

// recorder captures callback deliveries for assertions.
type recorder struct {
	mu        sync.Mutex
	snaps     []Snapshot
	completed []Snapshot
	failures  []string
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(s Snapshot) {
			r.mu.Lock()
			r.snaps = append(r.snaps, s)
			r.mu.Unlock()
		},
		OnCompleted: func(s Snapshot) {
			r.mu.Lock()
			r.completed = append(r.completed, s)
			r.mu.Unlock()
		},
		OnFailed: func(msg string) {
			r.mu.Lock()
			r.failures = append(r.failures, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *recorder) progressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	values := make([]int, 0, len(r.snaps))
	for _, s := range r.snaps {
		values = append(values, s.Progress)
	}
	return values
}

func (r *recorder) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *recorder) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func (r *recorder) waitCompleted(t *testing.T) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.completed) > 0 {
			snap := r.completed[0]
			r.mu.Unlock()
			return snap
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for OnCompleted")
	return Snapshot{}
}

func (r *recorder) waitFailed(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.failures) > 0 {
			msg := r.failures[0]
			r.mu.Unlock()
			return msg
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for OnFailed")
	return ""
}

func (r *recorder) waitProgress(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.snaps) > 0 {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for OnProgress")
}
