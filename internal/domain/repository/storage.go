package repository

import (
	"context"
	"time"
)

// ObjectStorage defines the object storage operations needed to serve ingest assets.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// GeneratePresignedDownloadURL creates a presigned URL for downloading an object.
	// The URL is valid for the specified duration.
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Exists checks if an object exists in the storage.
	Exists(ctx context.Context, key string) (bool, error)
}

// AssetResolver turns an asset path such as "/frames/{id}/frame_00001.jpg"
// into a URL a viewer can fetch.
type AssetResolver interface {
	ResolveURL(ctx context.Context, assetPath string) (string, error)
}
