package usecase

import (
	"sync"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/progress"
)

// ProgressService hands out watches on per-video ingestion progress.
// All watches of one video share a single progress channel.
type ProgressService struct {
	registry *progress.Registry
	store    *progress.Store
}

// NewProgressService creates a ProgressService. The registry's sink must feed store.
func NewProgressService(registry *progress.Registry, store *progress.Store) *ProgressService {
	return &ProgressService{
		registry: registry,
		store:    store,
	}
}

// Watch starts observing videoID. The caller must Release the watch.
func (s *ProgressService) Watch(videoID string) (*Watch, error) {
	if videoID == "" {
		return nil, model.ErrEmptyVideoID
	}

	frameCount := 0
	if v, ok := s.store.Video(videoID); ok {
		frameCount = v.FrameCount
	}
	s.store.StartProgress(videoID, frameCount)

	w := &Watch{
		videoID:  videoID,
		registry: s.registry,
		store:    s.store,
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.unsubscribe = s.store.Subscribe(func(id string) {
		if id != videoID {
			return
		}
		select {
		case w.events <- struct{}{}:
		default:
		}
	})

	if _, err := s.registry.Acquire(videoID); err != nil {
		w.unsubscribe()
		return nil, err
	}
	return w, nil
}

// Progress returns the merged progress of videoID.
func (s *ProgressService) Progress(videoID string) (model.Progress, bool) {
	return s.store.Progress(videoID)
}

// Watching reports how many watches are held on videoID.
func (s *ProgressService) Watching(videoID string) int {
	return s.registry.RefCount(videoID)
}

// Close ends every watch at once.
func (s *ProgressService) Close() error {
	return s.registry.Close()
}

// Watch is one observer's hold on a video's progress.
type Watch struct {
	videoID     string
	registry    *progress.Registry
	store       *progress.Store
	unsubscribe func()

	events chan struct{}
	done   chan struct{}
	once   sync.Once
}

// VideoID returns the observed video.
func (w *Watch) VideoID() string {
	return w.videoID
}

// Events delivers a notice after the video's progress or metadata changed.
// Notices are coalesced; read Progress for the current state.
func (w *Watch) Events() <-chan struct{} {
	return w.events
}

// Done is closed once the watch is released.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Progress returns the current merged progress.
func (w *Watch) Progress() (model.Progress, bool) {
	return w.store.Progress(w.videoID)
}

// Release ends the watch. Only the first call has an effect.
func (w *Watch) Release() {
	w.once.Do(func() {
		w.unsubscribe()
		w.registry.Release(w.videoID)
		close(w.done)
	})
}
