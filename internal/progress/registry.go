package progress

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
)

// ErrRegistryClosed is returned by Acquire after Close.
var ErrRegistryClosed = errors.New("connection registry closed")

// Sink receives every event of every channel the registry opens.
type Sink func(videoID string, ev model.Event)

// RegistryConfig holds configuration for Registry.
type RegistryConfig struct {
	// Sink is attached as the first listener of each new channel.
	// Normally Store.Apply.
	Sink Sink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Entry is a registry slot for one video: the shared channel and how many
// observers hold it. Callers only borrow it between Acquire and Release.
type Entry struct {
	Channel *Channel

	refCount int // guarded by Registry.mu
}

// IsOpen reports whether the entry's channel is connected.
func (e *Entry) IsOpen() bool {
	return e.Channel.IsOpen()
}

// Subscribe attaches a listener to the entry's channel.
func (e *Entry) Subscribe(fn Listener) *Subscription {
	return e.Channel.Subscribe(fn)
}

// Registry shares a single progress channel per video ID between observers.
// A channel is opened on the first Acquire and closed when the last observer
// releases it. Safe for concurrent use.
type Registry struct {
	dialer repository.ProgressDialer
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	closed  bool
}

// NewRegistry creates an empty registry that opens channels with dialer.
func NewRegistry(dialer repository.ProgressDialer, cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dialer:  dialer,
		sink:    cfg.Sink,
		logger:  logger.With("component", "progress-registry"),
		entries: make(map[string]*Entry),
	}
}

// Acquire returns the entry for videoID, opening its channel if this is the
// first observer, and takes one reference on it.
func (r *Registry) Acquire(videoID string) (*Entry, error) {
	if videoID == "" {
		return nil, model.ErrEmptyVideoID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpAcquire, metrics.RegistryResultRejected).Inc()
		return nil, ErrRegistryClosed
	}

	if e, ok := r.entries[videoID]; ok {
		e.refCount++
		metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpAcquire, metrics.RegistryResultShared).Inc()
		r.logger.Debug("progress channel shared", "video_id", videoID, "ref_count", e.refCount)
		return e, nil
	}

	ch := newChannel(videoID, r.dialer, r.logger)
	if r.sink != nil {
		sink := r.sink
		ch.Subscribe(func(ev model.Event) { sink(videoID, ev) })
	}
	e := &Entry{Channel: ch, refCount: 1}
	r.entries[videoID] = e
	ch.start()

	metrics.ProgressChannelsActive.Inc()
	metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpAcquire, metrics.RegistryResultCreated).Inc()
	r.logger.Info("progress channel opened", "video_id", videoID)
	return e, nil
}

// Release drops one reference on videoID's entry and closes the channel when
// none remain. Releasing an unknown video is a no-op.
func (r *Registry) Release(videoID string) {
	r.mu.Lock()

	e, ok := r.entries[videoID]
	if !ok || e.refCount <= 0 {
		r.mu.Unlock()
		metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpRelease, metrics.RegistryResultUnknown).Inc()
		r.logger.Debug("release without matching acquire", "video_id", videoID)
		return
	}

	e.refCount--
	if e.refCount > 0 {
		refs := e.refCount
		r.mu.Unlock()
		metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpRelease, metrics.RegistryResultRetained).Inc()
		r.logger.Debug("progress channel retained", "video_id", videoID, "ref_count", refs)
		return
	}

	delete(r.entries, videoID)
	// Stop under the lock so a concurrent Acquire can never see two live channels.
	conn := e.Channel.stop()
	r.mu.Unlock()

	metrics.ProgressChannelsActive.Dec()
	metrics.RegistryOperationsTotal.WithLabelValues(metrics.RegistryOpRelease, metrics.RegistryResultClosed).Inc()
	r.logger.Info("progress channel closed", "video_id", videoID)

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.logger.Debug("closing progress connection", "video_id", videoID, "error", err)
		}
	}
}

// RefCount returns the number of observers holding videoID, 0 if none.
func (r *Registry) RefCount(videoID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[videoID]; ok {
		return e.refCount
	}
	return 0
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close closes every channel regardless of outstanding references and waits
// for their readers to exit, so no sink call is running once it returns.
// Later Acquire calls fail with ErrRegistryClosed; Release calls become no-ops.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*Entry)

	conns := make([]repository.ProgressConn, 0, len(entries))
	for _, e := range entries {
		if conn := e.Channel.stop(); conn != nil {
			conns = append(conns, conn)
		}
	}
	r.mu.Unlock()

	metrics.ProgressChannelsActive.Sub(float64(len(entries)))

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range entries {
		<-e.Channel.Done()
	}
	return errors.Join(errs...)
}
