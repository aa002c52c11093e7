package cache

import (
	"context"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
)

// VideoListCache defines the interface for caching the backend's video list.
// Implementations should handle serialization/deserialization transparently.
type VideoListCache interface {
	// Get retrieves the cached list.
	// Returns nil, nil if nothing is cached (cache miss). An empty cached
	// list is returned as a non-nil empty slice.
	Get(ctx context.Context) ([]model.Video, error)

	// Set stores the list with the specified TTL.
	Set(ctx context.Context, videos []model.Video, ttl time.Duration) error

	// Invalidate drops the cached list.
	// Returns nil if nothing was cached.
	Invalidate(ctx context.Context) error
}
