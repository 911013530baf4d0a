package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"comicd/internal/coordinator"
	"comicd/internal/domain"
	"comicd/internal/history"
	"comicd/internal/infra"
)

const persistTimeout = 30 * time.Second

// GenerationRunner is the slice of the coordinator the session manager
// drives. One runner handles one task at a time, so the manager creates a
// fresh runner per session.
type GenerationRunner interface {
	StartCompleteGeneration(ctx context.Context, task domain.GenerationTask, cb coordinator.Callbacks) error
	CancelGeneration(ctx context.Context)
}

// RunnerFactory builds a runner for a new session.
type RunnerFactory func() (GenerationRunner, error)

// SessionState is the wire form of a generation session.
type SessionState struct {
	TaskID     string                  `json:"task_id"`
	Status     domain.GenerationStatus `json:"status"`
	Progress   float64                 `json:"progress"`
	Message    string                  `json:"message,omitempty"`
	FramePaths []string                `json:"frame_paths,omitempty"`
	ComicID    string                  `json:"comic_id,omitempty"`
	Saved      bool                    `json:"saved"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

type session struct {
	state  SessionState
	runner GenerationRunner
	style  string
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Factory RunnerFactory
	History *history.Service
	Logger  *infra.Logger
	// Retention bounds how long finished sessions stay queryable.
	Retention time.Duration
	// ThumbnailClient fetches the first panel image for the history
	// thumbnail. Nil disables thumbnails.
	ThumbnailClient *http.Client
}

// Manager tracks in-flight generation sessions by task ID, fans coordinator
// callbacks into queryable state, and persists finished comics to history.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*session
	factory   RunnerFactory
	history   *history.Service
	logger    *infra.Logger
	retention time.Duration
	thumbs    *http.Client
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Factory == nil {
		return nil, errors.New("handlers: runner factory is required")
	}
	if opts.History == nil {
		return nil, errors.New("handlers: history service is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("handlers: logger is required")
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Manager{
		sessions:  make(map[string]*session),
		factory:   opts.Factory,
		history:   opts.History,
		logger:    opts.Logger,
		retention: retention,
		thumbs:    opts.ThumbnailClient,
	}, nil
}

// Start opens a session for the task and kicks off the pipeline. The task ID
// must not collide with a session that is still running.
func (m *Manager) Start(ctx context.Context, task domain.GenerationTask) error {
	m.mu.Lock()
	m.pruneLocked()
	if existing, ok := m.sessions[task.TaskID]; ok && !existing.state.Status.Terminal() {
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	m.mu.Unlock()

	runner, err := m.factory()
	if err != nil {
		return fmt.Errorf("handlers: build runner: %w", err)
	}

	s := &session{
		state: SessionState{
			TaskID:    task.TaskID,
			Status:    domain.StatusIdle,
			UpdatedAt: time.Now().UTC(),
		},
		runner: runner,
		style:  task.Config.StoryStyle,
	}
	// Re-check under the same lock as the insert: a racing Start for the
	// same task ID may have registered since the first look. A session that
	// has not reached a terminal state keeps its slot.
	m.mu.Lock()
	if existing, ok := m.sessions[task.TaskID]; ok && !existing.state.Status.Terminal() {
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	m.sessions[task.TaskID] = s
	m.mu.Unlock()

	cb := m.callbacksFor(task.TaskID)
	if err := runner.StartCompleteGeneration(ctx, task, cb); err != nil {
		m.mu.Lock()
		delete(m.sessions, task.TaskID)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot returns the current session state for the task ID.
func (m *Manager) Snapshot(taskID string) (SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	s, ok := m.sessions[taskID]
	if !ok {
		return SessionState{}, false
	}
	return s.state, true
}

// Cancel aborts the session's pipeline. The coordinator goes quiet after a
// cancel, so the session state is finalized here.
func (m *Manager) Cancel(ctx context.Context, taskID string) error {
	m.mu.Lock()
	s, ok := m.sessions[taskID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	runner := s.runner
	s.state.Status = domain.StatusCancelled
	s.state.Message = "cancelled by user"
	s.state.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()

	runner.CancelGeneration(ctx)
	return nil
}

func (m *Manager) callbacksFor(taskID string) coordinator.Callbacks {
	return coordinator.Callbacks{
		OnStatusChanged: func(status domain.GenerationStatus) {
			m.update(taskID, func(st *SessionState) {
				st.Status = status
			})
		},
		OnProgress: func(p float64) {
			m.update(taskID, func(st *SessionState) {
				st.Progress = p
			})
		},
		OnBaseFramesExtracted: func(paths []string) {
			m.update(taskID, func(st *SessionState) {
				st.FramePaths = paths
			})
		},
		OnCompleted: func(result *domain.ComicResult) {
			var style string
			m.mu.Lock()
			if s, ok := m.sessions[taskID]; ok {
				style = s.style
				s.state.Status = domain.StatusCompleted
				s.state.Progress = 1.0
				s.state.ComicID = result.ComicID
				s.state.UpdatedAt = time.Now().UTC()
			}
			m.mu.Unlock()
			go m.persist(taskID, result, style)
		},
		OnFailed: func(message string) {
			m.update(taskID, func(st *SessionState) {
				st.Status = domain.StatusFailed
				st.Message = message
			})
		},
	}
}

func (m *Manager) update(taskID string, fn func(*SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	if !ok {
		return
	}
	fn(&s.state)
	s.state.UpdatedAt = time.Now().UTC()
}

// persist saves a finished comic to history, with a best-effort thumbnail
// from the first panel.
func (m *Manager) persist(taskID string, result *domain.ComicResult, style string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	thumbRef := m.fetchThumbnail(ctx, result)
	saved, err := m.history.Save(ctx, result, style, thumbRef)
	if err != nil {
		m.logger.Error().Err(err).Str("comic_id", result.ComicID).Msg("sessions: history save failed")
		return
	}
	if !saved {
		m.logger.Debug().Str("comic_id", result.ComicID).Msg("sessions: comic already in history")
	}
	m.update(taskID, func(st *SessionState) {
		st.Saved = true
	})
}

func (m *Manager) fetchThumbnail(ctx context.Context, result *domain.ComicResult) string {
	if m.thumbs == nil || len(result.Panels) == 0 {
		return ""
	}
	url := result.Panels[0].ImageURL
	if !strings.HasPrefix(url, "http") {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := m.thumbs.Do(req)
	if err != nil {
		m.logger.Warn().Err(err).Str("comic_id", result.ComicID).Msg("sessions: thumbnail fetch failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ""
	}
	name := path.Base(url)
	if name == "." || name == "/" {
		name = "thumbnail.png"
	}
	ref, err := m.history.CachePanelImage(ctx, result.ComicID, name, data)
	if err != nil {
		m.logger.Warn().Err(err).Str("comic_id", result.ComicID).Msg("sessions: thumbnail cache failed")
		return ""
	}
	return ref
}

// pruneLocked drops finished sessions past the retention window. Callers
// hold m.mu.
func (m *Manager) pruneLocked() {
	cutoff := time.Now().UTC().Add(-m.retention)
	for id, s := range m.sessions {
		if s.state.Status.Terminal() && s.state.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
