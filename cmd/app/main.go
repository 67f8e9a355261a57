package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storybook-pipeline/internal/config"
	"storybook-pipeline/internal/domain/ports/adapter"
	aiAdapters "storybook-pipeline/internal/infra/adapters/ai"
	"storybook-pipeline/internal/infra/api"
	"storybook-pipeline/internal/infra/api/apiv1"
	pg "storybook-pipeline/internal/infra/db/postgres"
	"storybook-pipeline/internal/infra/logging"
	"storybook-pipeline/internal/infra/metrics"
	red "storybook-pipeline/internal/infra/redis"
	"storybook-pipeline/internal/infra/retry"
	"storybook-pipeline/internal/infra/storage"
	"storybook-pipeline/internal/infra/worker"
	"storybook-pipeline/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI adapters, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewRunLocker(redisClient)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	taskRepo := pg.NewTaskRepo(pool)
	storyRepo := pg.NewStoryRepo(pool, txm)
	charRepo := pg.NewCharacterRepo(pool)

	// ---- Image store ----
	store, err := storage.NewLocalImageStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("image store")
	}

	// ---- AI adapters ----
	var textGen adapter.TextGenerator
	var imageGen adapter.ImageGenerator
	if cfg.Runtime.Dev && cfg.AI.OpenAIKey == "" {
		textGen = aiAdapters.NewNoopTextGenerator()
		logger.Info().Msg("text generator: noop")
	} else {
		textGen, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.TextModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.TextModel).Msg("text generator: openai")
	}
	if cfg.Runtime.Dev && cfg.AI.GeminiKey == "" {
		imageGen = aiAdapters.NewNoopImageGenerator()
		logger.Info().Msg("image generator: noop")
	} else {
		imageGen, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.ImageModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.ImageModel).Msg("image generator: gemini")
	}
	imageGen = aiAdapters.NewLimitedImageGenerator(imageGen, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	tracker := usecase.NewTaskTrackerUseCase(taskRepo, logger)
	library := usecase.NewCharacterLibraryUseCase(charRepo, logger)
	policy := retry.Policy{
		MaxAttempts: cfg.Generation.MaxImageAttempts,
		BaseDelay:   cfg.Generation.ImageRetryBaseDelay,
	}
	pipeline := usecase.NewStoryPipelineUseCase(tracker, storyRepo, library, textGen, imageGen, store, policy, logger)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Generation.Workers, logger.With().Str("component", "worker").Logger())
	pool2.Start(ctx)
	defer pool2.Stop()
	dispatcher := worker.NewDispatcher(pipeline, pool2, locker, cfg.Redis.LockTTL, logger)

	// ---- API server ----
	v1 := apiv1.NewServer(tracker, library, storyRepo, dispatcher)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: api.NewRouter(&cfg.API, logger, v1),
	}
	go func() {
		logger.Info().Str("addr", apiSrv.Addr).Msg("api listening")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	// ---- Ops server (metrics + health) ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", promhttp.Handler())
	opsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	opsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Ops.Port), Handler: opsMux}
	go func() {
		logger.Info().Str("addr", opsSrv.Addr).Msg("ops listening")
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// ---- DB pool stats loop ----
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = opsSrv.Shutdown(shutdownCtx)
	cancel()
}
