package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/framelens/internal/config"
	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/backend"
	"github.com/hszk-dev/framelens/internal/infrastructure/pubsub"
	"github.com/hszk-dev/framelens/internal/infrastructure/websocket"
	"github.com/hszk-dev/framelens/internal/progress"
	"github.com/hszk-dev/framelens/internal/usecase"
)

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: watch [OPTIONS] (-file PATH | -video ID)")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Uploads a video (or picks an existing one) and follows its ingestion")
	fmt.Fprintln(os.Stderr, "progress until every frame is indexed.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	filePath := flag.String("file", "", "video file to upload")
	videoID := flag.String("video", "", "ID of an already uploaded video")
	timeout := flag.Duration("timeout", 0, "give up after this long (0 waits forever)")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Usage = printUsage
	flag.Parse()

	if (*filePath == "") == (*videoID == "") {
		printUsage()
		return errors.New("exactly one of -file or -video is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
		defer cancelTimeout()
	}

	api, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	store := progress.NewStore(progress.StoreConfig{Logger: logger})
	videoSvc := usecase.NewVideoService(api, store, nil, usecase.VideoServiceConfig{})

	dialer, closeDialer, err := newProgressDialer(ctx, cfg, videoSvc.FrameCount, logger)
	if err != nil {
		return err
	}
	defer closeDialer()

	registry := progress.NewRegistry(dialer, progress.RegistryConfig{
		Sink:   store.Apply,
		Logger: logger,
	})
	progressSvc := usecase.NewProgressService(registry, store)
	defer func() {
		if err := closeWithin(progressSvc.Close, cfg.Watch.ShutdownTimeout); err != nil {
			logger.Warn("progress shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	id := *videoID
	if *filePath != "" {
		video, err := upload(ctx, videoSvc, *filePath)
		if err != nil {
			return err
		}
		id = video.ID
		fmt.Printf("uploaded %s as %s\n", video.Name, video.ID)
	} else if _, err := videoSvc.Refresh(ctx); err != nil {
		logger.Warn("failed to load video list", slog.String("error", err.Error()))
	}

	watch, err := progressSvc.Watch(id)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", id, err)
	}
	defer watch.Release()

	var refresh <-chan time.Time
	if cfg.Watch.RefreshInterval > 0 {
		ticker := time.NewTicker(cfg.Watch.RefreshInterval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	last := ""
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("gave up on %s after %s", id, *timeout)
			}
			return nil
		case <-refresh:
			if _, err := videoSvc.Refresh(ctx); err != nil {
				logger.Warn("periodic refresh failed", slog.String("error", err.Error()))
			}
		case <-watch.Events():
			p, ok := watch.Progress()
			if !ok {
				continue
			}
			v, ok := store.Video(id)
			if !ok {
				v = model.Video{ID: id}
			}
			line := formatStatus(v, p)
			if line != last {
				fmt.Println(line)
				last = line
			}
			if done, err := finished(v, p); done {
				return err
			}
		}
	}
}

func upload(ctx context.Context, svc usecase.VideoService, path string) (*model.Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	video, err := svc.Upload(ctx, usecase.UploadVideoInput{
		FileName: filepath.Base(path),
		Content:  f,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return video, nil
}

// finished reports whether watching can stop, and with what outcome.
func finished(v model.Video, p model.Progress) (bool, error) {
	if p.ShowPlayer {
		return true, nil
	}
	if v.ProcessingState == model.StateFailed {
		return true, fmt.Errorf("processing of %s failed", v.ID)
	}
	if p.ChannelFailed {
		return true, fmt.Errorf("progress channel for %s failed", v.ID)
	}
	return false, nil
}

// closeWithin runs closeFn but stops waiting for it after timeout.
// A non-positive timeout waits as long as closeFn takes.
func closeWithin(closeFn func() error, timeout time.Duration) error {
	if timeout <= 0 {
		return closeFn()
	}
	errCh := make(chan error, 1)
	go func() { errCh <- closeFn() }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("progress channels still closing after %s", timeout)
	}
}

func formatStatus(v model.Video, p model.Progress) string {
	name := v.Name
	if name == "" {
		name = v.ID
	}
	switch {
	case p.ShowPlayer:
		return fmt.Sprintf("%s: all %d frames indexed", name, p.FrameCount)
	case p.ChannelFailed:
		return fmt.Sprintf("%s: progress channel failed", name)
	case !progress.Ready(p):
		if p.Loading {
			return fmt.Sprintf("%s: connecting", name)
		}
		return fmt.Sprintf("%s: extracting frames", name)
	}
	s := progress.Summarize(p)
	return fmt.Sprintf("%s: %d/%d done (%.0f%%), %d processing, %d pending",
		name, s.Done, s.Total, s.DonePercent, s.Processing, s.Pending)
}

func newProgressDialer(ctx context.Context, cfg *config.Config, frames pubsub.FrameCounter, logger *slog.Logger) (repository.ProgressDialer, func(), error) {
	if cfg.Progress.Mode != config.ProgressModeRedis {
		d, err := websocket.NewDialer(websocket.Config{
			BaseURL:          cfg.Progress.WebSocketURL,
			HandshakeTimeout: cfg.Progress.HandshakeTimeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create websocket dialer: %w", err)
		}
		return d, func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return pubsub.NewDialer(redisClient, frames, logger), func() { redisClient.Close() }, nil
}
