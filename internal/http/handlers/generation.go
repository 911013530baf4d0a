package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"comicd/internal/domain"
)

type generateRequest struct {
	VideoPath     string  `json:"video_path"`
	StoryStyle    string  `json:"story_style"`
	TargetFrames  int     `json:"target_frames"`
	FrameInterval float64 `json:"frame_interval"`
	StylePrompt   string  `json:"style_prompt"`
	ImageSize     string  `json:"image_size"`
}

type generateResponse struct {
	TaskID string                  `json:"task_id"`
	Status domain.GenerationStatus `json:"status"`
}

// GenerateComic opens a new generation session and returns its task ID. The
// pipeline runs asynchronously; clients poll the status endpoint.
func (a *App) GenerateComic(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid_payload")
		return
	}
	if strings.TrimSpace(req.VideoPath) == "" {
		a.error(w, r, http.StatusBadRequest, "bad_request", "video_path_required")
		return
	}

	cfg := domain.DefaultGenerationConfig()
	if req.StoryStyle != "" {
		cfg.StoryStyle = req.StoryStyle
	}
	if req.TargetFrames > 0 {
		cfg.TargetFrames = req.TargetFrames
	}
	if req.FrameInterval > 0 {
		cfg.FrameInterval = req.FrameInterval
	}
	if req.StylePrompt != "" {
		cfg.StylePrompt = req.StylePrompt
	}
	if req.ImageSize != "" {
		cfg.ImageSize = req.ImageSize
	}

	task := domain.GenerationTask{
		TaskID:    uuid.NewString(),
		VideoPath: req.VideoPath,
		Config:    cfg,
	}
	if err := task.Validate(); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid_payload")
		return
	}

	if err := a.Sessions.Start(r.Context(), task); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			a.error(w, r, http.StatusConflict, "conflict", "generation_busy")
			return
		}
		a.Logger.Error().Err(err).Str("task_id", task.TaskID).Msg("handlers: generation start failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusAccepted, generateResponse{TaskID: task.TaskID, Status: domain.StatusExtractingBaseFrames})
}

// GenerationStatus returns the live session snapshot for a task.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	state, ok := a.Sessions.Snapshot(taskID)
	if !ok {
		a.error(w, r, http.StatusNotFound, "not_found", "task_not_found")
		return
	}
	a.json(w, http.StatusOK, state)
}

// GenerationCancel aborts a running session.
func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if err := a.Sessions.Cancel(r.Context(), taskID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found", "task_not_found")
			return
		}
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"task_id": taskID, "cancelled": true})
}
