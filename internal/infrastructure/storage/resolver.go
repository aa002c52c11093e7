package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/repository"
)

const defaultPresignExpiry = 15 * time.Minute

// ErrInvalidAssetPath is returned for paths outside the asset tree.
var ErrInvalidAssetPath = errors.New("invalid asset path")

// objectKey maps "/frames/v1/frame_00001.jpg" to "frames/v1/frame_00001.jpg".
func objectKey(assetPath string) (string, error) {
	if assetPath == "" {
		return "", ErrInvalidAssetPath
	}
	cleaned := path.Clean("/" + assetPath)
	if cleaned == "/" || strings.Contains(assetPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetPath, assetPath)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// StaticResolver serves assets from the backend's static file mount.
type StaticResolver struct {
	base *url.URL
}

// NewStaticResolver creates a resolver rooted at baseURL, e.g. "http://localhost:8000/static".
func NewStaticResolver(baseURL string) (*StaticResolver, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse static base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("static base URL must be absolute: %q", baseURL)
	}
	return &StaticResolver{base: base}, nil
}

// ResolveURL implements repository.AssetResolver.
func (r *StaticResolver) ResolveURL(_ context.Context, assetPath string) (string, error) {
	key, err := objectKey(assetPath)
	if err != nil {
		return "", err
	}
	return r.base.JoinPath(key).String(), nil
}

// PresignedResolver serves assets as presigned object storage URLs.
type PresignedResolver struct {
	storage     repository.ObjectStorage
	expiry      time.Duration
	checkExists bool
}

// PresignedResolverConfig holds configuration for PresignedResolver.
type PresignedResolverConfig struct {
	Expiry time.Duration
	// CheckExists makes ResolveURL fail with ErrObjectNotFound for assets
	// that have not been written yet, at the cost of one extra request.
	CheckExists bool
}

// NewPresignedResolver creates a resolver backed by storage.
func NewPresignedResolver(storage repository.ObjectStorage, cfg PresignedResolverConfig) *PresignedResolver {
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &PresignedResolver{
		storage:     storage,
		expiry:      expiry,
		checkExists: cfg.CheckExists,
	}
}

// ResolveURL implements repository.AssetResolver.
func (r *PresignedResolver) ResolveURL(ctx context.Context, assetPath string) (string, error) {
	key, err := objectKey(assetPath)
	if err != nil {
		return "", err
	}

	if r.checkExists {
		exists, err := r.storage.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
		}
	}

	return r.storage.GeneratePresignedDownloadURL(ctx, key, r.expiry)
}
