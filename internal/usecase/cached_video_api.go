package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/cache"
)

// CachedVideoAPIConfig holds configuration for the cached VideoAPI.
type CachedVideoAPIConfig struct {
	// ListTTL is the TTL for the cached video list.
	ListTTL time.Duration
}

// DefaultCachedVideoAPIConfig returns the default configuration.
func DefaultCachedVideoAPIConfig() CachedVideoAPIConfig {
	return CachedVideoAPIConfig{
		ListTTL: 30 * time.Second,
	}
}

// cachedVideoAPI wraps a VideoAPI with a shared cache of the video list.
// It implements the decorator pattern so several gateways can share one
// list fetch without changing the backend client.
type cachedVideoAPI struct {
	delegate repository.VideoAPI
	cache    cache.VideoListCache
	listTTL  time.Duration
}

// NewCachedVideoAPI creates a VideoAPI that serves ListVideos from listCache
// and invalidates it on every mutation. A non-positive ListTTL takes the default.
func NewCachedVideoAPI(
	delegate repository.VideoAPI,
	listCache cache.VideoListCache,
	cfg CachedVideoAPIConfig,
) repository.VideoAPI {
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = DefaultCachedVideoAPIConfig().ListTTL
	}
	return &cachedVideoAPI{
		delegate: delegate,
		cache:    listCache,
		listTTL:  cfg.ListTTL,
	}
}

// ListVideos implements the cache-aside pattern.
func (a *cachedVideoAPI) ListVideos(ctx context.Context) ([]model.Video, error) {
	videos, err := a.cache.Get(ctx)
	if err != nil {
		// Log cache error but continue to the backend
		slog.Warn("cache get failed, falling back to backend", "error", err)
	}
	if videos != nil {
		return videos, nil // Cache hit
	}

	videos, err = a.delegate.ListVideos(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.cache.Set(ctx, videos, a.listTTL); err != nil {
		slog.Warn("failed to cache video list", "error", err)
	}
	return videos, nil
}

// Upload invalidates the list after the backend accepted the file.
func (a *cachedVideoAPI) Upload(ctx context.Context, fileName string, r io.Reader) (string, error) {
	videoID, err := a.delegate.Upload(ctx, fileName, r)
	if err != nil {
		return "", err
	}
	a.invalidate(ctx, "upload", videoID)
	return videoID, nil
}

func (a *cachedVideoAPI) Rename(ctx context.Context, videoID, name string) error {
	if err := a.delegate.Rename(ctx, videoID, name); err != nil {
		return err
	}
	a.invalidate(ctx, "rename", videoID)
	return nil
}

func (a *cachedVideoAPI) Delete(ctx context.Context, videoID string) error {
	if err := a.delegate.Delete(ctx, videoID); err != nil {
		return err
	}
	a.invalidate(ctx, "delete", videoID)
	return nil
}

// Search is never cached.
func (a *cachedVideoAPI) Search(ctx context.Context, query string, videoIDs []string) ([]repository.SearchResult, error) {
	return a.delegate.Search(ctx, query, videoIDs)
}

func (a *cachedVideoAPI) invalidate(ctx context.Context, op, videoID string) {
	// Cache invalidation failure is non-critical; the entry expires with its TTL.
	if err := a.cache.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate video list cache",
			"operation", op,
			"video_id", videoID,
			"error", err,
		)
	}
}
