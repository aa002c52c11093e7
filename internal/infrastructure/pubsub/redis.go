// Package pubsub implements the progress transport directly over the
// backend's Redis: live events from the progress:{videoId} channel, and
// snapshots built from the per-video progress sets. Redis does not hold the
// frame count; it comes from the video's metadata.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/progress"
)

const keyPrefix = "progress:"

// ErrUnsupportedMessage is returned by Send for anything but a snapshot request.
var ErrUnsupportedMessage = errors.New("unsupported client message")

// ChannelName returns the pub/sub channel carrying videoID's events.
func ChannelName(videoID string) string {
	return keyPrefix + videoID
}

// InProcessKey is the set of frame indices currently being indexed.
func InProcessKey(videoID string) string {
	return keyPrefix + videoID + ":in_process"
}

// DoneKey is the set of frame indices that finished indexing.
func DoneKey(videoID string) string {
	return keyPrefix + videoID + ":done"
}

// FrameCounter returns the number of extracted frames of a video, 0 while
// extraction is still running.
type FrameCounter func(ctx context.Context, videoID string) (int, error)

// Dialer subscribes to a video's progress channel. It implements
// repository.ProgressDialer.
type Dialer struct {
	client *redis.Client
	frames FrameCounter
	logger *slog.Logger
}

// NewDialer creates a Dialer on top of an existing Redis client. frames
// supplies the frame count for snapshots; nil reports every video as still
// extracting.
func NewDialer(client *redis.Client, frames FrameCounter, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		client: client,
		frames: frames,
		logger: logger.With("component", "redis-progress"),
	}
}

// Dial subscribes to videoID's channel and waits for the subscription to be confirmed.
func (d *Dialer) Dial(ctx context.Context, videoID string) (repository.ProgressConn, error) {
	ps := d.client.Subscribe(ctx, ChannelName(videoID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ChannelName(videoID), err)
	}

	return &conn{
		videoID:  videoID,
		client:   d.client,
		frames:   d.frames,
		ps:       ps,
		messages: ps.Channel(),
		local:    make(chan []byte, 4),
		closed:   make(chan struct{}),
		logger:   d.logger,
	}, nil
}

type conn struct {
	videoID  string
	client   *redis.Client
	frames   FrameCounter
	ps       *redis.PubSub
	messages <-chan *redis.Message
	local    chan []byte
	logger   *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Send answers a snapshot request locally from the progress sets.
func (c *conn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return repository.ErrConnClosed
	default:
	}
	if !progress.IsGetProgressRequest(msg) {
		return ErrUnsupportedMessage
	}

	snap, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	raw, err := progress.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	select {
	case c.local <- raw:
		return nil
	case <-c.closed:
		return repository.ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	// Answers to our own requests go first.
	select {
	case raw := <-c.local:
		return raw, nil
	default:
	}

	select {
	case raw := <-c.local:
		return raw, nil
	case msg, ok := <-c.messages:
		if !ok {
			select {
			case <-c.closed:
				return nil, repository.ErrConnClosed
			default:
			}
			return nil, errors.New("redis subscription ended")
		}
		return []byte(msg.Payload), nil
	case <-c.closed:
		return nil, repository.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ps.Close()
	})
	return err
}

// snapshot mirrors the backend: until the frame count is known there is
// nothing to report, and the sets are not read.
func (c *conn) snapshot(ctx context.Context) (model.SnapshotEvent, error) {
	total := c.frameCount(ctx)
	if total <= 0 {
		return model.SnapshotEvent{ExtractionInProgress: true}, nil
	}

	inProcess, err := c.frameSet(ctx, InProcessKey(c.videoID))
	if err != nil {
		return model.SnapshotEvent{}, err
	}
	done, err := c.frameSet(ctx, DoneKey(c.videoID))
	if err != nil {
		return model.SnapshotEvent{}, err
	}

	return model.SnapshotEvent{
		InProcess:     inProcess,
		Done:          done,
		TotalFrames:   total,
		FirstFrameURL: model.FramePath(c.videoID, 0),
	}, nil
}

// frameCount treats a failed lookup as extraction still running; the live
// frames_extracted event carries the count as well.
func (c *conn) frameCount(ctx context.Context) int {
	if c.frames == nil {
		return 0
	}
	n, err := c.frames(ctx, c.videoID)
	if err != nil {
		c.logger.Warn("frame count lookup failed",
			slog.String("video_id", c.videoID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return n
}

func (c *conn) frameSet(ctx context.Context, key string) ([]model.FrameRef, error) {
	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}

	indices := make([]int, 0, len(members))
	for _, m := range members {
		idx, err := strconv.Atoi(m)
		if err != nil || idx < 0 {
			c.logger.Debug("skipping invalid frame index", "key", key, "member", m)
			continue
		}
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	refs := make([]model.FrameRef, 0, len(indices))
	for _, idx := range indices {
		refs = append(refs, model.FrameRef{Index: idx, URL: model.FramePath(c.videoID, idx)})
	}
	return refs, nil
}
