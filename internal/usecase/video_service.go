package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
	"github.com/hszk-dev/framelens/internal/progress"
)

// ErrEmptyQuery is returned when a search has nothing to look for.
var ErrEmptyQuery = errors.New("search query cannot be empty")

const refreshKey = "videos"

// UploadVideoInput contains the input parameters for uploading a video.
type UploadVideoInput struct {
	FileName string
	Content  io.Reader
}

// SearchInput contains the input parameters for a frame search.
type SearchInput struct {
	Query string
	// VideoIDs limits the search to these videos. Empty means all.
	VideoIDs []string
}

// SearchHit is one matched frame with a URL the viewer can load.
type SearchHit struct {
	repository.SearchResult
	FrameURL string
}

// VideoService defines the interface for video list operations.
type VideoService interface {
	// Refresh fetches the video list from the backend and replaces the local list.
	// Concurrent calls share one backend request. Returns the list newest first.
	Refresh(ctx context.Context) ([]model.Video, error)

	// List returns the local list newest first without contacting the backend.
	List() []model.Video

	// Upload sends a file to the backend and inserts the new video locally
	// in the processing state.
	Upload(ctx context.Context, input UploadVideoInput) (*model.Video, error)

	// Rename changes a video's display name on the backend, then locally.
	Rename(ctx context.Context, videoID, name string) error

	// Delete removes a video on the backend, then drops it and its progress locally.
	Delete(ctx context.Context, videoID string) error

	// Search runs a semantic frame search.
	Search(ctx context.Context, input SearchInput) ([]SearchHit, error)

	// FrameCount returns the number of extracted frames of a video, 0 while
	// extraction runs. An unknown or not yet extracted video triggers a Refresh.
	FrameCount(ctx context.Context, videoID string) (int, error)
}

// VideoServiceConfig holds configuration for VideoService.
type VideoServiceConfig struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

type videoService struct {
	api     repository.VideoAPI
	store   *progress.Store
	assets  repository.AssetResolver
	sfGroup singleflight.Group
	now     func() time.Time
}

// NewVideoService creates a new VideoService instance.
// assets may be nil, in which case search hits carry no frame URL.
func NewVideoService(
	api repository.VideoAPI,
	store *progress.Store,
	assets repository.AssetResolver,
	cfg VideoServiceConfig,
) VideoService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &videoService{
		api:    api,
		store:  store,
		assets: assets,
		now:    now,
	}
}

func (s *videoService) Refresh(ctx context.Context) ([]model.Video, error) {
	_, err, shared := s.sfGroup.Do(refreshKey, func() (any, error) {
		videos, err := s.api.ListVideos(ctx)
		if err != nil {
			return nil, fmt.Errorf("list videos: %w", err)
		}
		s.store.SetVideos(videos)
		return nil, nil
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return s.store.SortedByCreated(), nil
}

func (s *videoService) List() []model.Video {
	return s.store.SortedByCreated()
}

func (s *videoService) Upload(ctx context.Context, input UploadVideoInput) (*model.Video, error) {
	name := strings.TrimSpace(input.FileName)
	if err := model.ValidateName(name); err != nil {
		return nil, err
	}

	videoID, err := s.api.Upload(ctx, name, input.Content)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	video, err := model.NewVideo(videoID, name, s.now())
	if err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	s.store.InsertVideo(*video)

	slog.Info("video uploaded", "video_id", videoID, "name", name)
	return video, nil
}

func (s *videoService) Rename(ctx context.Context, videoID, name string) error {
	if videoID == "" {
		return model.ErrEmptyVideoID
	}
	name = strings.TrimSpace(name)
	if err := model.ValidateName(name); err != nil {
		return err
	}

	if err := s.api.Rename(ctx, videoID, name); err != nil {
		return fmt.Errorf("rename video: %w", err)
	}

	// The backend is authoritative; a video missing from the local list
	// shows up with its new name on the next refresh.
	if err := s.store.RenameVideo(videoID, name); err != nil && !errors.Is(err, repository.ErrVideoNotFound) {
		return fmt.Errorf("rename local video: %w", err)
	}
	return nil
}

func (s *videoService) Delete(ctx context.Context, videoID string) error {
	if videoID == "" {
		return model.ErrEmptyVideoID
	}
	if err := s.api.Delete(ctx, videoID); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	s.store.RemoveVideo(videoID)

	slog.Info("video deleted", "video_id", videoID)
	return nil
}

func (s *videoService) Search(ctx context.Context, input SearchInput) ([]SearchHit, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	results, err := s.api.Search(ctx, query, input.VideoIDs)
	if err != nil {
		return nil, fmt.Errorf("search frames: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if r.VideoName == "" {
			if v, ok := s.store.Video(r.VideoID); ok {
				r.VideoName = v.Name
			}
		}
		hits = append(hits, SearchHit{SearchResult: r, FrameURL: s.frameURL(ctx, r.VideoID, r.FrameIdx)})
	}
	return hits, nil
}

func (s *videoService) FrameCount(ctx context.Context, videoID string) (int, error) {
	if videoID == "" {
		return 0, model.ErrEmptyVideoID
	}
	if v, ok := s.store.Video(videoID); ok && v.FrameCount > 0 {
		return v.FrameCount, nil
	}

	if _, err := s.Refresh(ctx); err != nil {
		return 0, err
	}
	v, ok := s.store.Video(videoID)
	if !ok {
		return 0, repository.ErrVideoNotFound
	}
	return v.FrameCount, nil
}

func (s *videoService) frameURL(ctx context.Context, videoID string, idx int) string {
	if s.assets == nil {
		return ""
	}
	u, err := s.assets.ResolveURL(ctx, model.FramePath(videoID, idx))
	if err != nil {
		slog.Warn("failed to resolve frame URL",
			"video_id", videoID,
			"frame_idx", idx,
			"error", err,
		)
		return ""
	}
	return u
}
