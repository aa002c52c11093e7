package repository

import (
	"context"
	"io"

	"github.com/hszk-dev/framelens/internal/domain/model"
)

// SearchResult is one frame matched by a semantic search.
type SearchResult struct {
	VideoID     string
	VideoName   string
	FrameIdx    int
	Description string
	Timestamp   *float64
}

// VideoAPI defines the backend's request/response operations on videos.
// Implementations should be provided by the infrastructure layer (HTTP).
type VideoAPI interface {
	// ListVideos returns every video known to the backend, in no particular order.
	ListVideos(ctx context.Context) ([]model.Video, error)

	// Upload sends a video file and returns the ID the backend assigned to it.
	Upload(ctx context.Context, fileName string, r io.Reader) (string, error)

	// Rename changes a video's display name.
	// Returns ErrVideoNotFound if the video does not exist.
	Rename(ctx context.Context, videoID, name string) error

	// Delete removes a video and its frames.
	// Returns ErrVideoNotFound if the video does not exist.
	Delete(ctx context.Context, videoID string) error

	// Search runs a semantic query over indexed frames, optionally limited to some videos.
	Search(ctx context.Context, query string, videoIDs []string) ([]SearchResult, error)
}
