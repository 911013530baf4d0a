package handlers

import (
	"encoding/json"
	"net/http"

	"comicd/internal/history"
	"comicd/internal/infra"
	"comicd/internal/middleware"
)

type App struct {
	History  *history.Service
	Sessions *Manager
	Logger   *infra.Logger
}

func NewApp(hist *history.Service, sessions *Manager, logger *infra.Logger) *App {
	return &App{History: hist, Sessions: sessions, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// error writes a localized error payload. msgid is looked up in the message
// table for the request locale; unknown ids fall through verbatim.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, msgid string) {
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, code, errorPayload{Error: errCode, Message: localize(locale, msgid)})
}
