package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vizgen/internal/http/handlers"
	"vizgen/internal/http/httpapi"
	"vizgen/internal/infra"
	"vizgen/internal/jobs"
	"vizgen/internal/prompt"
	"vizgen/internal/providers/claude"
	"vizgen/internal/render"
	"vizgen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	pool, err := claude.NewPool(ctx, cfg.ClaudePoolSize, claude.Options{
		SessionCookie: cfg.SessionCookie,
		BaseURL:       cfg.ClaudeBaseURL,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct client pool")
	}
	logger.Info().Int("size", pool.Size()).Msg("client pool ready")

	runner, err := render.NewRunner(render.Options{
		PythonBin: cfg.PythonBin,
		MediaDir:  cfg.MediaDir,
		SceneName: cfg.SceneName,
		Workers:   int64(cfg.RenderWorkers),
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure renderer")
	}

	store := jobs.NewStore()
	orch, err := jobs.NewOrchestrator(jobs.Options{
		Pool:        jobs.ClaudePool{Pool: pool},
		Store:       store,
		Renderer:    runner,
		BuildPrompt: prompt.Build,
		SendTimeout: cfg.SendTimeout,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure orchestrator")
	}

	library, err := storage.NewLibrary(cfg.MediaDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure media library")
	}

	app := handlers.NewApp(store, orch, library, cfg.JobTTL, logger)
	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	// In-flight jobs hold no server resources, but give them a chance to
	// record their terminal state before the process exits.
	if err := server.ShutdownAndDrain(shutdownCtx, orch.Wait); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn().Msg("abandoning in-flight jobs")
		} else {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
	}
	logger.Info().Msg("server stopped")
}
