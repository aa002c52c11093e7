package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/framelens/internal/api/handler"
	"github.com/hszk-dev/framelens/internal/api/middleware"
	"github.com/hszk-dev/framelens/internal/config"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/backend"
	"github.com/hszk-dev/framelens/internal/infrastructure/cache"
	"github.com/hszk-dev/framelens/internal/infrastructure/pubsub"
	"github.com/hszk-dev/framelens/internal/infrastructure/storage"
	"github.com/hszk-dev/framelens/internal/infrastructure/websocket"
	"github.com/hszk-dev/framelens/internal/progress"
	"github.com/hszk-dev/framelens/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Redis backs the progress pub/sub transport and the shared list cache.
	var redisClient *redis.Client
	if cfg.Progress.Mode == config.ProgressModeRedis || cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	var api repository.VideoAPI = backendClient
	if cfg.Cache.Enabled {
		api = usecase.NewCachedVideoAPI(backendClient, cache.NewRedisVideoListCache(redisClient), usecase.CachedVideoAPIConfig{
			ListTTL: cfg.Cache.ListTTL,
		})
	}

	assets, err := newAssetResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store := progress.NewStore(progress.StoreConfig{Logger: logger})
	videoSvc := usecase.NewVideoService(api, store, assets, usecase.VideoServiceConfig{})

	dialer, err := newProgressDialer(cfg, redisClient, videoSvc.FrameCount, logger)
	if err != nil {
		return err
	}
	registry := progress.NewRegistry(dialer, progress.RegistryConfig{
		Sink:   store.Apply,
		Logger: logger,
	})
	progressSvc := usecase.NewProgressService(registry, store)

	if videos, err := videoSvc.Refresh(ctx); err != nil {
		logger.Warn("initial video list refresh failed", slog.String("error", err.Error()))
	} else {
		logger.Info("loaded video list", slog.Int("count", len(videos)))
	}

	videoHandler := handler.NewVideoHandler(videoSvc, cfg.Server.MaxUploadBytes)
	progressHandler := handler.NewProgressHandler(progressSvc, assets, logger)
	r := setupRouter(logger, registry, videoHandler, progressHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway",
			slog.Int("port", cfg.Server.Port),
			slog.String("progress_mode", cfg.Progress.Mode),
			slog.String("assets_mode", cfg.Assets.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down gateway", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Held watches go first, then anything the registry still owns.
	progressHandler.Close()
	if err := progressSvc.Close(); err != nil {
		logger.Warn("progress channels closed with errors", slog.String("error", err.Error()))
	}

	logger.Info("gateway stopped")
	return nil
}

func newProgressDialer(cfg *config.Config, redisClient *redis.Client, frames pubsub.FrameCounter, logger *slog.Logger) (repository.ProgressDialer, error) {
	if cfg.Progress.Mode == config.ProgressModeRedis {
		return pubsub.NewDialer(redisClient, frames, logger), nil
	}

	d, err := websocket.NewDialer(websocket.Config{
		BaseURL:          cfg.Progress.WebSocketURL,
		HandshakeTimeout: cfg.Progress.HandshakeTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket dialer: %w", err)
	}
	return d, nil
}

func newAssetResolver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.AssetResolver, error) {
	switch cfg.Assets.Mode {
	case config.AssetModeMinIO:
		storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:       cfg.MinIO.Endpoint,
			PublicEndpoint: cfg.MinIO.PublicEndpoint,
			AccessKey:      cfg.MinIO.AccessKey,
			SecretKey:      cfg.MinIO.SecretKey,
			Bucket:         cfg.MinIO.Bucket,
			UseSSL:         cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		logger.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))
		return storage.NewPresignedResolver(storageClient, storage.PresignedResolverConfig{
			Expiry:      cfg.Assets.PresignExpiry,
			CheckExists: cfg.Assets.CheckExists,
		}), nil
	default:
		resolver, err := storage.NewStaticResolver(cfg.Assets.StaticBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create asset resolver: %w", err)
		}
		return resolver, nil
	}
}

func setupRouter(
	logger *slog.Logger,
	registry *progress.Registry,
	videos *handler.VideoHandler,
	progressHandler *handler.ProgressHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health(registry.Len))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/videos", videos.List)
		r.Post("/videos", videos.Upload)
		r.Patch("/videos/{id}", videos.Rename)
		r.Delete("/videos/{id}", videos.Delete)

		r.Post("/videos/{id}/watch", progressHandler.Watch)
		r.Delete("/videos/{id}/watch", progressHandler.Unwatch)
		r.Get("/videos/{id}/progress", progressHandler.Get)

		r.Post("/search", videos.Search)
	})

	return r
}
