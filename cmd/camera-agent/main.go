package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zanzhit/securecam/internal/agent/motion"
	"github.com/zanzhit/securecam/internal/agent/recorder"
	"github.com/zanzhit/securecam/internal/agent/uploader"
	"github.com/zanzhit/securecam/internal/config"
	agenthandler "github.com/zanzhit/securecam/internal/http-server/handlers/agent"
	"github.com/zanzhit/securecam/internal/http-server/middleware/logger"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoadAgent()

	log := setupLogger(cfg.Env)

	log.Info("starting camera agent",
		slog.String("env", cfg.Env),
		slog.Int64("camera_id", cfg.CameraID),
	)

	if cfg.Token == "" {
		panic("AGENT_TOKEN is required")
	}
	if cfg.AuthKey == "" {
		panic("CAMERA_AUTH_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	up := uploader.New(log, cfg.ServerURL, cfg.Token, cfg.CameraID, cfg.UploadTimeout)

	rec, err := recorder.New(log, cfg.RecordCommand, cfg.VideosPath, func(_ context.Context, r recorder.Recording) {
		// Uploads outlive the request that started the recording but not the agent.
		if err := up.UploadAndRemove(ctx, r.Path); err != nil {
			log.Error("recording kept on disk", slog.String("file", r.Path), sl.Err(err))
		}
	})
	if err != nil {
		panic(err)
	}

	agentHandler := agenthandler.New(log, rec, motion.New(true), cfg.RecordDuration, cfg.MaxDuration)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)

	router.Get("/health", agentHandler.Health)

	router.Group(func(r chi.Router) {
		r.Use(agenthandler.KeyRequired(cfg.AuthKey))

		r.Get("/status", agentHandler.Status)
		r.Post("/run/record", agentHandler.Record)
		r.Post("/run/enable", agentHandler.Enable)
		r.Post("/run/disable", agentHandler.Disable)
		r.Delete("/recordings/{id}", agentHandler.Stop)
	})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("agent started", slog.String("address", cfg.Address))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("agent stopped", sl.Err(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop agent gracefully", sl.Err(err))
			_ = srv.Close()
		}
	}

	rec.Wait()

	log.Info("agent stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
