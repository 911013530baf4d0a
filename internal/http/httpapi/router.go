package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"comicd/internal/http/handlers"
	"comicd/internal/middleware"
)

// Options carries everything the router needs beyond the handlers.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(splitOrigins(opts.AllowedOrigins)),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.DeviceID,
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/comics", func(r chi.Router) {
		r.Post("/generate", app.GenerateComic)
		r.Get("/{task_id}/status", app.GenerationStatus)
		r.Post("/{task_id}/cancel", app.GenerationCancel)
	})

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.HistoryList)
		r.Get("/recent", app.HistoryRecent)
		r.Get("/count", app.HistoryCount)
		r.Get("/{id}", app.HistoryGet)
		r.Get("/{id}/export", app.HistoryExport)
		r.Delete("/{id}", app.HistoryDelete)
		r.Delete("/", app.HistoryClear)
	})

	return r
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
