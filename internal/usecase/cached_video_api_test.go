package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
)

// mockVideoListCache is a mock implementation of VideoListCache for testing.
type mockVideoListCache struct {
	mu           sync.Mutex
	data         []model.Video
	cached       bool
	lastTTL      time.Duration
	getFn        func(ctx context.Context) ([]model.Video, error)
	invalidateFn func(ctx context.Context) error
	invalidated  atomic.Int32
}

func (m *mockVideoListCache) Get(ctx context.Context) ([]model.Video, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cached {
		return nil, nil
	}
	out := make([]model.Video, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *mockVideoListCache) Set(ctx context.Context, videos []model.Video, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = videos
	m.cached = true
	m.lastTTL = ttl
	return nil
}

func (m *mockVideoListCache) Invalidate(ctx context.Context) error {
	m.invalidated.Add(1)
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.cached = false
	return nil
}

func TestCachedVideoAPI_ListVideos(t *testing.T) {
	var calls atomic.Int32
	api := &mockVideoAPI{
		listVideosFn: func(ctx context.Context) ([]model.Video, error) {
			calls.Add(1)
			return []model.Video{{ID: "v1"}}, nil
		},
	}
	listCache := &mockVideoListCache{}
	// Zero config falls back to the default TTL.
	cached := NewCachedVideoAPI(api, listCache, CachedVideoAPIConfig{})

	for i := 0; i < 3; i++ {
		videos, err := cached.ListVideos(context.Background())
		if err != nil {
			t.Fatalf("ListVideos failed: %v", err)
		}
		if len(videos) != 1 || videos[0].ID != "v1" {
			t.Fatalf("unexpected videos %v", videos)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("backend ListVideos called %d times, want 1", calls.Load())
	}
	if listCache.lastTTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", listCache.lastTTL)
	}
}

func TestCachedVideoAPI_ListVideos_ConfiguredTTL(t *testing.T) {
	listCache := &mockVideoListCache{}
	cached := NewCachedVideoAPI(&mockVideoAPI{}, listCache, CachedVideoAPIConfig{ListTTL: 5 * time.Second})

	if _, err := cached.ListVideos(context.Background()); err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}
	if listCache.lastTTL != 5*time.Second {
		t.Errorf("TTL = %v, want 5s", listCache.lastTTL)
	}
}

func TestCachedVideoAPI_ListVideos_CacheErrorFallsBackToBackend(t *testing.T) {
	api := &mockVideoAPI{
		listVideosFn: func(ctx context.Context) ([]model.Video, error) {
			return []model.Video{{ID: "fresh"}}, nil
		},
	}
	listCache := &mockVideoListCache{
		getFn: func(ctx context.Context) ([]model.Video, error) {
			return nil, errors.New("redis down")
		},
	}
	cached := NewCachedVideoAPI(api, listCache, DefaultCachedVideoAPIConfig())

	videos, err := cached.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}
	if len(videos) != 1 || videos[0].ID != "fresh" {
		t.Errorf("unexpected videos %v", videos)
	}
}

func TestCachedVideoAPI_ListVideos_BackendErrorNotCached(t *testing.T) {
	api := &mockVideoAPI{
		listVideosFn: func(ctx context.Context) ([]model.Video, error) {
			return nil, repository.ErrBackendUnavailable
		},
	}
	listCache := &mockVideoListCache{}
	cached := NewCachedVideoAPI(api, listCache, DefaultCachedVideoAPIConfig())

	if _, err := cached.ListVideos(context.Background()); !errors.Is(err, repository.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if listCache.cached {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestCachedVideoAPI_MutationsInvalidate(t *testing.T) {
	tests := []struct {
		name    string
		call    func(api repository.VideoAPI) error
		failing func(m *mockVideoAPI)
	}{
		{
			name: "upload",
			call: func(api repository.VideoAPI) error {
				_, err := api.Upload(context.Background(), "clip.mp4", strings.NewReader("x"))
				return err
			},
			failing: func(m *mockVideoAPI) {
				m.uploadFn = func(ctx context.Context, fileName string, r io.Reader) (string, error) {
					return "", repository.ErrBackendUnavailable
				}
			},
		},
		{
			name: "rename",
			call: func(api repository.VideoAPI) error {
				return api.Rename(context.Background(), "v1", "new.mp4")
			},
			failing: func(m *mockVideoAPI) {
				m.renameFn = func(ctx context.Context, videoID, name string) error {
					return repository.ErrVideoNotFound
				}
			},
		},
		{
			name: "delete",
			call: func(api repository.VideoAPI) error {
				return api.Delete(context.Background(), "v1")
			},
			failing: func(m *mockVideoAPI) {
				m.deleteFn = func(ctx context.Context, videoID string) error {
					return repository.ErrVideoNotFound
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listCache := &mockVideoListCache{cached: true}
			if err := tt.call(NewCachedVideoAPI(&mockVideoAPI{}, listCache, DefaultCachedVideoAPIConfig())); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if listCache.invalidated.Load() != 1 {
				t.Errorf("expected one invalidation, got %d", listCache.invalidated.Load())
			}

			failingAPI := &mockVideoAPI{}
			tt.failing(failingAPI)
			listCache = &mockVideoListCache{cached: true}
			if err := tt.call(NewCachedVideoAPI(failingAPI, listCache, DefaultCachedVideoAPIConfig())); err == nil {
				t.Fatal("expected error")
			}
			if listCache.invalidated.Load() != 0 {
				t.Error("failed mutation must not invalidate")
			}
		})
	}
}

func TestCachedVideoAPI_InvalidateErrorIsNotFatal(t *testing.T) {
	listCache := &mockVideoListCache{
		invalidateFn: func(ctx context.Context) error {
			return errors.New("redis down")
		},
	}
	cached := NewCachedVideoAPI(&mockVideoAPI{}, listCache, DefaultCachedVideoAPIConfig())

	if err := cached.Delete(context.Background(), "v1"); err != nil {
		t.Errorf("expected invalidation failure to be swallowed, got %v", err)
	}
}
