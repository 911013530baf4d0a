package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"comicd/internal/domain"
)

const defaultRecentLimit = 20

type historyItem struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	OriginalVideoTitle string    `json:"original_video_title"`
	CreationDate       time.Time `json:"creation_date"`
	PanelCount         int       `json:"panel_count"`
	StoryStyle         string    `json:"story_style,omitempty"`
	ThumbnailRef       string    `json:"thumbnail_ref,omitempty"`
}

func toHistoryItems(records []domain.HistoryRecord) []historyItem {
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:                 rec.ID,
			Title:              rec.Title,
			OriginalVideoTitle: rec.OriginalVideoTitle,
			CreationDate:       rec.CreationDate,
			PanelCount:         rec.PanelCount,
			StoryStyle:         rec.StoryStyle,
			ThumbnailRef:       rec.ThumbnailRef,
		})
	}
	return items
}

// HistoryList returns every saved comic, newest first.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	records, err := a.History.FetchAll(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history list failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toHistoryItems(records)})
}

// HistoryRecent returns the newest saved comics, capped by the limit query
// parameter.
func (a *App) HistoryRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := a.History.FetchRecent(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history recent failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toHistoryItems(records)})
}

// HistoryGet returns one saved comic with its full panel payload.
func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := a.History.FetchResultByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found", "record_not_found")
			return
		}
		a.Logger.Error().Err(err).Str("comic_id", id).Msg("handlers: history get failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusOK, result)
}

// HistoryExport streams a saved comic as a zip archive with the comic JSON
// and any locally cached panel images.
func (a *App) HistoryExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	archive, err := a.History.ExportArchive(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found", "record_not_found")
			return
		}
		a.Logger.Error().Err(err).Str("comic_id", id).Msg("handlers: history export failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// HistoryDelete removes one saved comic and its cached panel images.
func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := a.History.Delete(r.Context(), id)
	if err != nil {
		a.Logger.Error().Err(err).Str("comic_id", id).Msg("handlers: history delete failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	if !deleted {
		a.error(w, r, http.StatusNotFound, "not_found", "record_not_found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// HistoryClear removes every saved comic and empties the image cache.
func (a *App) HistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := a.History.ClearAll(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history clear failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HistoryCount returns the number of saved comics.
func (a *App) HistoryCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.History.Count(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history count failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "internal_error")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"count": n})
}
