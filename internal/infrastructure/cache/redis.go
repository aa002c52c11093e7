package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
)

const (
	// videoListKey is the Redis key holding the serialized video list.
	videoListKey = "videos:list"
)

// videoJSON is the JSON representation of a Video for caching.
// Using explicit struct avoids coupling to domain model's JSON tags.
type videoJSON struct {
	ID              string `json:"video_id"`
	Name            string `json:"video_name"`
	ProcessingState string `json:"processing_state"`
	FrameCount      int    `json:"frame_count"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// RedisVideoListCache implements VideoListCache using Redis as the backing store.
type RedisVideoListCache struct {
	client *redis.Client
	key    string
}

// NewRedisVideoListCache creates a new Redis-backed video list cache.
func NewRedisVideoListCache(client *redis.Client) *RedisVideoListCache {
	return &RedisVideoListCache{
		client: client,
		key:    videoListKey,
	}
}

// Get retrieves the video list from Redis.
// Returns nil, nil on cache miss.
func (c *RedisVideoListCache) Get(ctx context.Context) ([]model.Video, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			record(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil // Cache miss
		}
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	videos, err := deserialize(data)
	if err != nil {
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize video list: %w", err)
	}

	record(metrics.CacheOpGet, metrics.CacheStatusHit)
	return videos, nil
}

// Set stores the video list in Redis with the specified TTL.
func (c *RedisVideoListCache) Set(ctx context.Context, videos []model.Video, ttl time.Duration) error {
	data, err := serialize(videos)
	if err != nil {
		return fmt.Errorf("serialize video list: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	record(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// Invalidate removes the video list from Redis.
func (c *RedisVideoListCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		record(metrics.CacheOpDelete, metrics.CacheStatusError)
		return fmt.Errorf("redis del: %w", err)
	}

	record(metrics.CacheOpDelete, metrics.CacheStatusSuccess)
	return nil
}

func record(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, metrics.CacheTypeRedis).Inc()
}

func serialize(videos []model.Video) ([]byte, error) {
	out := make([]videoJSON, 0, len(videos))
	for _, v := range videos {
		out = append(out, videoJSON{
			ID:              v.ID,
			Name:            v.Name,
			ProcessingState: v.ProcessingState.String(),
			FrameCount:      v.FrameCount,
			CreatedAt:       v.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt:       v.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	return json.Marshal(out)
}

func deserialize(data []byte) ([]model.Video, error) {
	var in []videoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(in))
	for _, v := range in {
		state := model.ProcessingState(v.ProcessingState)
		if !state.IsValid() {
			return nil, fmt.Errorf("video %s: unknown processing state %q", v.ID, v.ProcessingState)
		}

		createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}

		videos = append(videos, model.Video{
			ID:              v.ID,
			Name:            v.Name,
			ProcessingState: state,
			FrameCount:      v.FrameCount,
			CreatedAt:       createdAt,
			UpdatedAt:       updatedAt,
		})
	}
	return videos, nil
}
