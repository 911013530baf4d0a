package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"comicd/internal/adapter/repo"
	"comicd/internal/coordinator"
	"comicd/internal/domain"
	"comicd/internal/gateway"
	"comicd/internal/history"
	"comicd/internal/http/handlers"
	"comicd/internal/http/httpapi"
	"comicd/internal/infra"
	"comicd/internal/infra/geoip"
	"comicd/internal/middleware"
	"comicd/internal/poller"
	"comicd/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// History storage: Postgres when configured, in-memory otherwise.
	var historyRepo domain.HistoryRepository
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		pg := repo.NewHistoryRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure history schema")
		}
		historyRepo = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, history is in-memory only")
		historyRepo = repo.NewHistoryRepositoryMem()
	}

	panelCache, err := storage.NewPanelCache(filepath.Join(cfg.StoragePath, "panels"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init panel cache")
	}
	hist, err := history.New(history.Options{Repo: historyRepo, Cache: panelCache, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init history service")
	}

	deviceID := infra.NewFileDeviceID(cfg.DeviceIDPath)
	httpClient := &http.Client{Timeout: cfg.GatewayTimeout}

	factory := func() (handlers.GenerationRunner, error) {
		gw, err := gateway.NewClient(gateway.Options{
			BaseURL:        cfg.ComicBackendURL,
			HTTPClient:     httpClient,
			Logger:         &logger,
			RequestTimeout: cfg.GatewayTimeout,
		})
		if err != nil {
			return nil, err
		}
		p, err := poller.New(poller.Options{Client: gw, Interval: cfg.PollInterval, Logger: &logger})
		if err != nil {
			return nil, err
		}
		return coordinator.New(coordinator.Options{
			Gateway:      gw,
			Poller:       p,
			Logger:       &logger,
			DeviceID:     deviceID,
			AssetBaseURL: cfg.ComicBackendURL,
		})
	}

	sessions, err := handlers.NewManager(handlers.ManagerOptions{
		Factory:         factory,
		History:         hist,
		Logger:          &logger,
		Retention:       cfg.SessionRetention,
		ThumbnailClient: httpClient,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init session manager")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	app := handlers.NewApp(hist, sessions, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
	})

	server := infra.NewHTTPServer(cfg, &logger, router)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(runCtx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
