package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
)

// Listener receives every event of a channel, in transport order.
// Listeners run on the channel's reader goroutine and must not block for long.
type Listener func(ev model.Event)

type channelState int

const (
	stateConnecting channelState = iota
	stateOpen
	stateFailed
	stateClosed
)

func (s channelState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateFailed:
		return "failed"
	default:
		return "closed"
	}
}

type listenerEntry struct {
	id uuid.UUID
	fn Listener
}

// Channel is one streaming progress connection for one video.
// It sends a snapshot request once the connection opens and fans every
// decoded event out to all subscribed listeners.
type Channel struct {
	videoID string
	dialer  repository.ProgressDialer
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     channelState
	conn      repository.ProgressConn
	listeners []listenerEntry
}

func newChannel(videoID string, dialer repository.ProgressDialer, logger *slog.Logger) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		videoID: videoID,
		dialer:  dialer,
		logger:  logger.With("video_id", videoID),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   stateConnecting,
	}
}

// VideoID returns the video this channel observes.
func (c *Channel) VideoID() string {
	return c.videoID
}

// IsOpen reports whether the connection is established and not yet closed or failed.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Done is closed once the reader goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Subscription detaches one listener from a channel.
type Subscription struct {
	id   uuid.UUID
	ch   *Channel
	once sync.Once
}

// Unsubscribe removes the listener. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.ch.mu.Lock()
		defer s.ch.mu.Unlock()
		for i, l := range s.ch.listeners {
			if l.id == s.id {
				s.ch.listeners = append(s.ch.listeners[:i:i], s.ch.listeners[i+1:]...)
				return
			}
		}
	})
}

// Subscribe attaches a listener for all subsequent events.
func (c *Channel) Subscribe(fn Listener) *Subscription {
	id := uuid.New()
	c.mu.Lock()
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()
	return &Subscription{id: id, ch: c}
}

// start launches the reader goroutine. Called once by the registry after the
// sink listener is attached so no early event is missed.
func (c *Channel) start() {
	go c.run()
}

func (c *Channel) run() {
	defer close(c.done)

	conn, err := c.dialer.Dial(c.ctx, c.videoID)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = stateOpen
	c.mu.Unlock()

	c.logger.Debug("progress channel open")

	if err := conn.Send(c.ctx, GetProgressRequest()); err != nil {
		if c.stopped() {
			return
		}
		c.fail(err)
		return
	}

	for {
		raw, err := conn.Receive(c.ctx)
		if err != nil {
			if c.stopped() {
				return
			}
			c.fail(err)
			return
		}

		ev, err := Decode(raw)
		if err != nil {
			metrics.ProgressMessagesDroppedTotal.WithLabelValues(dropReason(err)).Inc()
			c.logger.Debug("dropping progress message", "error", err)
			continue
		}
		c.emit(ev)
	}
}

// fail marks the channel failed and tells listeners to stop waiting.
// There is no reconnect.
func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateFailed
	c.mu.Unlock()

	c.logger.Warn("progress channel failed", "error", err)
	c.emit(model.ChannelErrorEvent{Err: err})
}

func (c *Channel) stopped() bool {
	if c.ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

func (c *Channel) emit(ev model.Event) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	metrics.ProgressEventsTotal.WithLabelValues(ev.Type().String()).Inc()
	for _, l := range listeners {
		l.fn(ev)
	}
}

// stop marks the channel closed and cancels the reader. It returns the
// connection still to be closed, or nil if there is nothing to close.
func (c *Channel) stop() repository.ProgressConn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return nil
	}
	prev := c.state
	c.state = stateClosed
	c.cancel()

	c.logger.Debug("progress channel closing", "previous_state", prev.String())
	conn := c.conn
	c.conn = nil
	return conn
}

// Close shuts the channel down. Only an open or connecting channel is closed;
// repeated calls are no-ops.
func (c *Channel) Close() error {
	conn := c.stop()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingType):
		return metrics.DropReasonMissingType
	case errors.Is(err, ErrUnknownType):
		return metrics.DropReasonUnknownType
	default:
		return metrics.DropReasonMalformed
	}
}
