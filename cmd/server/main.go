package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zanzhit/securecam/internal/config"
	amqpevents "github.com/zanzhit/securecam/internal/events/amqp"
	authhandler "github.com/zanzhit/securecam/internal/http-server/handlers/auth"
	camerashandler "github.com/zanzhit/securecam/internal/http-server/handlers/cameras"
	usershandler "github.com/zanzhit/securecam/internal/http-server/handlers/users"
	videoshandler "github.com/zanzhit/securecam/internal/http-server/handlers/videos"
	authmiddleware "github.com/zanzhit/securecam/internal/http-server/middleware/auth"
	"github.com/zanzhit/securecam/internal/http-server/middleware/logger"
	"github.com/zanzhit/securecam/internal/http-server/middleware/metrics"
	"github.com/zanzhit/securecam/internal/lib/hasher"
	"github.com/zanzhit/securecam/internal/lib/jwt"
	"github.com/zanzhit/securecam/internal/lib/sl"
	"github.com/zanzhit/securecam/internal/lib/validate"
	authservice "github.com/zanzhit/securecam/internal/services/auth"
	cameraservice "github.com/zanzhit/securecam/internal/services/cameras"
	agentclient "github.com/zanzhit/securecam/internal/services/cameras/agent"
	subscriptionservice "github.com/zanzhit/securecam/internal/services/subscriptions"
	userservice "github.com/zanzhit/securecam/internal/services/users"
	videoservice "github.com/zanzhit/securecam/internal/services/videos"
	fsblob "github.com/zanzhit/securecam/internal/storage/blob/fs"
	s3blob "github.com/zanzhit/securecam/internal/storage/blob/s3"
	"github.com/zanzhit/securecam/internal/storage/postgres"
	authstorage "github.com/zanzhit/securecam/internal/storage/postgres/auth"
	camerastorage "github.com/zanzhit/securecam/internal/storage/postgres/cameras"
	subscriptionstorage "github.com/zanzhit/securecam/internal/storage/postgres/subscriptions"
	userstorage "github.com/zanzhit/securecam/internal/storage/postgres/users"
	videostorage "github.com/zanzhit/securecam/internal/storage/postgres/videos"
	rediscache "github.com/zanzhit/securecam/internal/storage/redis"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const shutdownTimeout = 10 * time.Second

// blobStorage is what both blob backends provide.
type blobStorage interface {
	Write(ctx context.Context, path string, r io.Reader, size int64) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting securecam", slog.String("env", cfg.Env), slog.String("address", cfg.Address))

	if cfg.DB.Password == "" {
		panic("POSTGRES_PASSWORD is required")
	}
	if cfg.Auth.Secret == "" {
		panic("AUTH_SECRET is required")
	}
	if !jwt.Supported(cfg.Auth.Algorithm) {
		panic("unsupported AUTH_ALGORITHM: " + cfg.Auth.Algorithm)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	blobs, err := setupBlobs(ctx, cfg.Storage)
	if err != nil {
		panic(err)
	}

	userStorage := userstorage.New(db)
	cameraStorage := camerastorage.New(db)
	videoStorage := videostorage.New(db)
	subscriptionStorage := subscriptionstorage.New(db)
	authStorage := authstorage.New(db)

	passwords := hasher.New(hasher.Params{
		Memory:      cfg.Auth.Hash.Memory,
		Iterations:  cfg.Auth.Hash.Iterations,
		Parallelism: cfg.Auth.Hash.Parallelism,
	})

	authService := authservice.New(
		log,
		authservice.Config{
			Secret:     cfg.Auth.Secret,
			Algorithm:  cfg.Auth.Algorithm,
			AccessTTL:  cfg.Auth.AccessTokenTTL,
			RefreshTTL: cfg.Auth.RefreshTokenTTL,
		},
		passwords,
		userStorage,
		subscriptionStorage,
		authStorage,
	)

	if cfg.Redis.Addr != "" {
		cache, client, err := rediscache.New(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis is unavailable, personal access tokens are not cached", sl.Err(err))
		} else {
			defer client.Close()
			authService.WithCache(cache)
		}
	}

	userService := userservice.New(log, cfg.Auth.FirstUserAdmin, passwords, userStorage)
	subscriptionService := subscriptionservice.New(log, subscriptionStorage)
	agent := agentclient.New(log, cfg.Cameras.AgentPort, cfg.Cameras.Timeout)
	cameraService := cameraservice.New(log, cameraStorage, blobs, agent)
	videoService := videoservice.New(log, videoStorage, cameraStorage, subscriptionStorage, blobs)

	if cfg.AMQP.URL != "" {
		publisher, err := amqpevents.New(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("amqp is unavailable, upload events are disabled", sl.Err(err))
		} else {
			defer publisher.Close()
			videoService.WithEvents(publisher)
		}
	}

	v := validate.New()

	authHandler := authhandler.New(log, authService, v)
	userHandler := usershandler.New(log, userService, subscriptionService, videoService, v)
	cameraHandler := camerashandler.New(log, cameraService, subscriptionService, v)
	videoHandler := videoshandler.New(log, videoService, v)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	router.Use(metrics.New(reg).Middleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	jwtAuth := authmiddleware.JWTAuth(log, authService)

	router.Route("/auth", func(r chi.Router) {
		r.With(httprate.LimitByIP(cfg.RateLimit.LoginRequests, cfg.RateLimit.Window)).Post("/token", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth)

			r.Post("/logout", authHandler.Logout)
			r.Post("/logout/all", authHandler.LogoutAll)
			r.Post("/pat", authHandler.IssuePAT)
			r.Get("/pat", authHandler.PATs)
			r.Delete("/pat/{id}", authHandler.RevokePAT)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth)

			r.Get("/", userHandler.Users)
			r.Get("/me", userHandler.Me)
			r.Get("/{id_or_email}", userHandler.User)
			r.Put("/{id_or_email}", userHandler.Update)
			r.Delete("/{id_or_email}", userHandler.Delete)
			r.Get("/{id_or_email}/subscriptions", userHandler.Subscriptions)
			r.Post("/{id_or_email}/subscriptions", userHandler.SetSubscriptions)
			r.Post("/{id_or_email}/subscriptions/{camera_id}", userHandler.Subscribe)
			r.Delete("/{id_or_email}/subscriptions/{camera_id}", userHandler.Unsubscribe)
			r.Get("/{id_or_email}/videos", userHandler.Videos)
		})
	})

	router.Route("/cameras", func(r chi.Router) {
		r.Use(jwtAuth)

		r.Get("/", cameraHandler.Cameras)
		r.Get("/{id}", cameraHandler.Camera)

		r.Group(func(r chi.Router) {
			r.Use(authmiddleware.AdminRequired)

			r.Post("/", cameraHandler.SaveCamera)
			r.Put("/{id}", cameraHandler.UpdateCamera)
			r.Delete("/{id}", cameraHandler.DeleteCamera)
			r.Post("/{id}/actions/{action}", cameraHandler.RunAction)
			r.Get("/{id}/subscribers", cameraHandler.Subscribers)
			r.Post("/{id}/subscribers", cameraHandler.SetSubscribers)
		})
	})

	router.Route("/videos", func(r chi.Router) {
		r.Use(jwtAuth)

		r.Post("/", videoHandler.Upload)
		r.Get("/", videoHandler.Videos)
		r.Get("/{id}", videoHandler.Video)
		r.Get("/{id}/file", videoHandler.File)
		r.Put("/{id}", videoHandler.UpdateVideo)
		r.Delete("/{id}", videoHandler.DeleteVideo)
	})

	go sweep(ctx, authService, cfg.Auth.SweepInterval)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.Address))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", sl.Err(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop server gracefully", sl.Err(err))
			_ = srv.Close()
		}
	}

	log.Info("server stopped")
}

func setupBlobs(ctx context.Context, cfg config.Storage) (blobStorage, error) {
	if cfg.Driver == "s3" {
		blobs, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return blobs, nil
	}

	blobs, err := fsblob.New(cfg.VideosPath)
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

// sweep removes expired refresh tokens and personal access tokens until ctx is done.
func sweep(ctx context.Context, auth *authservice.AuthService, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// SweepExpired logs its own outcome.
			_, _ = auth.SweepExpired(ctx)
		}
	}
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
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
