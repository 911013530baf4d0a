package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"comicd/internal/adapter/repo"
	"comicd/internal/coordinator"
	"comicd/internal/domain"
	"comicd/internal/history"
	"comicd/internal/infra"
	"comicd/internal/storage"
)

type fakeRunner struct {
	mu        sync.Mutex
	cb        coordinator.Callbacks
	started   bool
	cancelled bool
	startErr  error
}

func (f *fakeRunner) StartCompleteGeneration(ctx context.Context, task domain.GenerationTask, cb coordinator.Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.cb = cb
	return nil
}

func (f *fakeRunner) CancelGeneration(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeRunner) callbacks() coordinator.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func testLogger() *infra.Logger {
	l := infra.Logger(zerolog.New(io.Discard))
	return &l
}

func newTestManager(t *testing.T, runner *fakeRunner) (*Manager, *history.Service) {
	t.Helper()
	cache, err := storage.NewPanelCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewPanelCache: %v", err)
	}
	hist, err := history.New(history.Options{Repo: repo.NewHistoryRepositoryMem(), Cache: cache})
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}
	m, err := NewManager(ManagerOptions{
		Factory: func() (GenerationRunner, error) { return runner, nil },
		History: hist,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, hist
}

func testTask(id string) domain.GenerationTask {
	return domain.GenerationTask{
		TaskID:    id,
		VideoPath: "/videos/trip.mp4",
		Config:    domain.DefaultGenerationConfig(),
	}
}

func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestManagerTracksPipelineProgress(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cb := runner.callbacks()
	cb.OnStatusChanged(domain.StatusExtractingBaseFrames)
	cb.OnProgress(0.3)
	cb.OnBaseFramesExtracted([]string{"/frames/f1.jpg", "/frames/f2.jpg"})
	cb.OnStatusChanged(domain.StatusGeneratingComic)
	cb.OnProgress(0.65)

	state, ok := m.Snapshot("task-1")
	if !ok {
		t.Fatal("session vanished")
	}
	if state.Status != domain.StatusGeneratingComic {
		t.Fatalf("status = %s, want generating_comic", state.Status)
	}
	if state.Progress != 0.65 {
		t.Fatalf("progress = %v, want 0.65", state.Progress)
	}
	if len(state.FramePaths) != 2 {
		t.Fatalf("frame paths = %v, want 2 entries", state.FramePaths)
	}
}

func TestManagerPersistsCompletedComic(t *testing.T) {
	runner := &fakeRunner{}
	m, hist := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result := &domain.ComicResult{
		ComicID:      "comic-9",
		Title:        "Trip",
		CreationDate: "2026-08-20T10:00:00Z",
		PanelCount:   1,
		Panels:       []domain.ComicPanel{{PanelNumber: 1, Narration: "hi"}},
	}
	runner.callbacks().OnCompleted(result)

	waitFor(t, func() bool {
		state, ok := m.Snapshot("task-1")
		return ok && state.Saved
	})

	state, _ := m.Snapshot("task-1")
	if state.Status != domain.StatusCompleted || state.Progress != 1.0 || state.ComicID != "comic-9" {
		t.Fatalf("unexpected final state: %+v", state)
	}
	rec, err := hist.FetchByID(context.Background(), "comic-9")
	if err != nil {
		t.Fatalf("comic not persisted: %v", err)
	}
	if rec.Title != "Trip" {
		t.Fatalf("persisted title = %q", rec.Title)
	}
}

func TestManagerReportsFailure(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	runner.callbacks().OnFailed("backend exploded")

	state, _ := m.Snapshot("task-1")
	if state.Status != domain.StatusFailed || state.Message != "backend exploded" {
		t.Fatalf("unexpected state after failure: %+v", state)
	}
}

func TestManagerRejectsDuplicateActiveTask(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	runner.callbacks().OnStatusChanged(domain.StatusGeneratingComic)

	err := m.Start(context.Background(), testTask("task-1"))
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestManagerRejectsDuplicateBeforeFirstCallback(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	// No coordinator callback has fired yet, so the first session is still
	// idle; its slot must be held all the same.
	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background(), testTask("task-1")); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}

	// A finished session frees the slot for a fresh run.
	runner.callbacks().OnFailed("backend exploded")
	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start after terminal state: %v", err)
	}
}

func TestManagerCancelFinalizesSession(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(context.Background(), "task-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	runner.mu.Lock()
	cancelled := runner.cancelled
	runner.mu.Unlock()
	if !cancelled {
		t.Fatal("runner was not cancelled")
	}
	state, _ := m.Snapshot("task-1")
	if state.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", state.Status)
	}
}

func TestManagerCancelUnknownTask(t *testing.T) {
	m, _ := newTestManager(t, &fakeRunner{})
	if err := m.Cancel(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestManagerStartErrorDropsSession(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("gateway down")}
	m, _ := newTestManager(t, runner)

	if err := m.Start(context.Background(), testTask("task-1")); err == nil {
		t.Fatal("expected start error")
	}
	if _, ok := m.Snapshot("task-1"); ok {
		t.Fatal("failed session should not be queryable")
	}
}
