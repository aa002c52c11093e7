package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
)

// fakeConn is an in-memory ProgressConn. Tests push server messages with push.
type fakeConn struct {
	inbound chan []byte
	sent    chan []byte
	closed  chan struct{}

	closeOnce  sync.Once
	closeCount int
	mu         sync.Mutex
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		sent:    make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return repository.ErrConnClosed
	default:
	}
	c.sent <- msg
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return nil, repository.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCount++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *fakeConn) push(msg string) {
	c.inbound <- []byte(msg)
}

// fakeDialer hands out a fresh fakeConn per Dial and remembers them.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string][]*fakeConn
	dials chan string

	dialFn func(ctx context.Context, videoID string) (repository.ProgressConn, error)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns: make(map[string][]*fakeConn),
		dials: make(chan string, 64),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, videoID string) (repository.ProgressConn, error) {
	select {
	case d.dials <- videoID:
	default:
	}
	if d.dialFn != nil {
		return d.dialFn(ctx, videoID)
	}
	conn := newFakeConn()
	d.mu.Lock()
	d.conns[videoID] = append(d.conns[videoID], conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) connsFor(videoID string) []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*fakeConn, len(d.conns[videoID]))
	copy(out, d.conns[videoID])
	return out
}

const testTimeout = 2 * time.Second

// waitOpen blocks until ch reports open.
func waitOpen(t *testing.T, ch *Channel) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !ch.IsOpen() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for channel to open")
		}
		time.Sleep(time.Millisecond)
	}
}

// waitSent returns the next message the client sent on conn.
func waitSent(t *testing.T, conn *fakeConn) []byte {
	t.Helper()
	select {
	case msg := <-conn.sent:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

// eventRecorder collects events delivered to a listener.
type eventRecorder struct {
	events chan model.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{events: make(chan model.Event, 64)}
}

func (r *eventRecorder) listen(ev model.Event) {
	r.events <- ev
}

func (r *eventRecorder) next(t *testing.T) model.Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (r *eventRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}
