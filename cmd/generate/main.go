package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"comicd/internal/adapter/repo"
	"comicd/internal/coordinator"
	"comicd/internal/domain"
	"comicd/internal/gateway"
	"comicd/internal/history"
	"comicd/internal/infra"
	"comicd/internal/poller"
	"comicd/internal/storage"
)

// comicd-generate runs one generation end to end from the command line and
// prints the finished comic as JSON. With a DATABASE_URL it also records the
// comic in history, same as the API server would.
func main() {
	_ = godotenv.Load()

	videoPath := flag.String("video", "", "path to the source video (required)")
	style := flag.String("style", "", "story style, e.g. manga or watercolor")
	frames := flag.Int("frames", 0, "target number of base frames")
	interval := flag.Float64("interval", 0, "seconds between extracted frames")
	noSave := flag.Bool("no-save", false, "skip writing the result to history")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if *videoPath == "" {
		logger.Fatal().Msg("generate: -video is required")
	}

	config := domain.DefaultGenerationConfig()
	if *style != "" {
		config.StoryStyle = *style
	}
	if *frames > 0 {
		config.TargetFrames = *frames
	}
	if *interval > 0 {
		config.FrameInterval = *interval
	}
	task := domain.GenerationTask{
		TaskID:    uuid.NewString(),
		VideoPath: *videoPath,
		Config:    config,
	}
	if err := task.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("generate: invalid task")
	}

	httpClient := &http.Client{Timeout: cfg.GatewayTimeout}
	gw, err := gateway.NewClient(gateway.Options{
		BaseURL:        cfg.ComicBackendURL,
		HTTPClient:     httpClient,
		Logger:         &logger,
		RequestTimeout: cfg.GatewayTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("generate: gateway init failed")
	}
	p, err := poller.New(poller.Options{Client: gw, Interval: cfg.PollInterval, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("generate: poller init failed")
	}
	coord, err := coordinator.New(coordinator.Options{
		Gateway:      gw,
		Poller:       p,
		Logger:       &logger,
		DeviceID:     infra.NewFileDeviceID(cfg.DeviceIDPath),
		AssetBaseURL: cfg.ComicBackendURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("generate: coordinator init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	var result *domain.ComicResult
	var failMessage string

	cb := coordinator.Callbacks{
		OnStatusChanged: func(status domain.GenerationStatus) {
			logger.Info().Str("status", string(status)).Msg("generate: status")
		},
		OnProgress: func(prog float64) {
			logger.Info().Int("percent", int(prog*100)).Msg("generate: progress")
		},
		OnBaseFramesExtracted: func(paths []string) {
			logger.Info().Int("frames", len(paths)).Msg("generate: base frames ready")
		},
		OnCompleted: func(r *domain.ComicResult) {
			result = r
			close(done)
		},
		OnFailed: func(message string) {
			failMessage = message
			close(done)
		},
	}

	if err := coord.StartCompleteGeneration(ctx, task, cb); err != nil {
		logger.Fatal().Err(err).Msg("generate: start failed")
	}

	select {
	case <-ctx.Done():
		coord.CancelGeneration(context.Background())
		logger.Fatal().Msg("generate: interrupted")
	case <-done:
	}

	if failMessage != "" {
		logger.Fatal().Str("reason", failMessage).Msg("generate: failed")
	}

	if !*noSave {
		saveToHistory(ctx, cfg, &logger, result, config.StoryStyle)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal().Err(err).Msg("generate: encode result failed")
	}
}

func saveToHistory(ctx context.Context, cfg *infra.Config, logger *infra.Logger, result *domain.ComicResult, style string) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("generate: DATABASE_URL not set, result not saved")
		return
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("generate: db connection failed, result not saved")
		return
	}
	defer pool.Close()

	cache, err := storage.NewPanelCache(filepath.Join(cfg.StoragePath, "panels"))
	if err != nil {
		logger.Error().Err(err).Msg("generate: panel cache init failed, result not saved")
		return
	}
	hist, err := history.New(history.Options{Repo: repo.NewHistoryRepository(pool), Cache: cache, Logger: logger})
	if err != nil {
		logger.Error().Err(err).Msg("generate: history init failed, result not saved")
		return
	}
	saved, err := hist.Save(ctx, result, style, "")
	if err != nil {
		logger.Error().Err(err).Msg("generate: history save failed")
		return
	}
	if saved {
		logger.Info().Str("comic_id", result.ComicID).Msg("generate: saved to history")
	}
}
