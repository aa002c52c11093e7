package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
)

// ChangeListener is notified with the ID of a video whose metadata or progress changed.
type ChangeListener func(videoID string)

// StoreConfig holds configuration for Store.
type StoreConfig struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store holds the list of known videos and the merged progress of every
// observed video. Merge is the only writer of progress. Safe for concurrent use.
type Store struct {
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	videos    []model.Video
	progress  map[string]model.Progress
	listeners map[uuid.UUID]ChangeListener
	// forgotten holds videos whose progress was dropped. Late events from a
	// channel that is still winding down must not bring it back.
	forgotten map[string]struct{}
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		now:       now,
		logger:    logger.With("component", "progress-store"),
		progress:  make(map[string]model.Progress),
		listeners: make(map[uuid.UUID]ChangeListener),
		forgotten: make(map[string]struct{}),
	}
}

// SetVideos replaces the whole video list, as after a list fetch.
func (s *Store) SetVideos(videos []model.Video) {
	cp := make([]model.Video, len(videos))
	copy(cp, videos)

	s.mu.Lock()
	s.videos = cp
	s.mu.Unlock()

	for _, v := range cp {
		s.notify(v.ID)
	}
}

// InsertVideo adds v, or replaces the video with the same ID.
func (s *Store) InsertVideo(v model.Video) {
	s.mu.Lock()
	if i := s.indexOf(v.ID); i >= 0 {
		s.videos[i] = v
	} else {
		s.videos = append(s.videos, v)
	}
	s.mu.Unlock()

	s.notify(v.ID)
}

// RenameVideo changes the display name of a known video.
func (s *Store) RenameVideo(videoID, name string) error {
	s.mu.Lock()
	i := s.indexOf(videoID)
	if i < 0 {
		s.mu.Unlock()
		return repository.ErrVideoNotFound
	}
	if err := s.videos[i].Rename(name, s.now()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(videoID)
	return nil
}

// RemoveVideo drops a video and its progress. Unknown IDs are ignored.
func (s *Store) RemoveVideo(videoID string) {
	s.mu.Lock()
	i := s.indexOf(videoID)
	if i >= 0 {
		s.videos = append(s.videos[:i:i], s.videos[i+1:]...)
	}
	_, tracked := s.progress[videoID]
	delete(s.progress, videoID)
	s.forgotten[videoID] = struct{}{}
	s.mu.Unlock()

	if i >= 0 || tracked {
		s.notify(videoID)
	}
}

// UpdateVideoState moves a known video to next.
// Returns model.ErrInvalidTransition when the state machine forbids it.
func (s *Store) UpdateVideoState(videoID string, next model.ProcessingState) error {
	s.mu.Lock()
	i := s.indexOf(videoID)
	if i < 0 {
		s.mu.Unlock()
		return repository.ErrVideoNotFound
	}
	if err := s.videos[i].TransitionTo(next, s.now()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(videoID)
	return nil
}

// Video returns a copy of the video with the given ID.
func (s *Store) Video(videoID string) (model.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(videoID); i >= 0 {
		return s.videos[i], true
	}
	return model.Video{}, false
}

// Videos returns a copy of the list in stored order.
func (s *Store) Videos() []model.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Video, len(s.videos))
	copy(out, s.videos)
	return out
}

// SortedByCreated returns the list newest first, for display.
func (s *Store) SortedByCreated() []model.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SortByCreatedDesc(s.videos)
}

// StartProgress seeds progress for a video about to be observed.
// Existing progress is kept so a second observer does not reset it.
func (s *Store) StartProgress(videoID string, frameCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.forgotten, videoID)
	if _, ok := s.progress[videoID]; ok {
		return
	}
	s.progress[videoID] = model.NewProgress(frameCount)
}

// Progress returns a copy of the merged progress for videoID.
func (s *Store) Progress(videoID string) (model.Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[videoID]
	if !ok {
		return model.Progress{}, false
	}
	return p.Clone(), true
}

// ForgetProgress drops the merged progress of videoID. Events arriving
// afterwards are ignored until StartProgress is called again.
func (s *Store) ForgetProgress(videoID string) {
	s.mu.Lock()
	delete(s.progress, videoID)
	s.forgotten[videoID] = struct{}{}
	s.mu.Unlock()
}

// Apply merges ev into videoID's progress and notifies listeners.
// It matches the Sink signature so a Registry can feed it directly.
func (s *Store) Apply(videoID string, ev model.Event) {
	s.mu.Lock()
	if _, gone := s.forgotten[videoID]; gone {
		s.mu.Unlock()
		s.logger.Debug("dropping event for forgotten video", "video_id", videoID, "type", ev.Type().String())
		return
	}
	prev, ok := s.progress[videoID]
	if !ok {
		frameCount := 0
		if i := s.indexOf(videoID); i >= 0 {
			frameCount = s.videos[i].FrameCount
		}
		prev = model.NewProgress(frameCount)
	}
	next := Merge(prev, ev)
	s.progress[videoID] = next

	var transitionErr error
	if _, terminal := ev.(model.AllFramesProcessedEvent); terminal {
		transitionErr = s.markSucceeded(videoID)
	}
	s.mu.Unlock()

	if idx, back := regressed(prev, next, ev); back {
		metrics.FrameRegressionsTotal.Inc()
		s.logger.Warn("frame moved backwards",
			"video_id", videoID,
			"frame_idx", idx,
			"from", prev.Frame(idx).Status.String(),
			"to", next.Frame(idx).Status.String(),
		)
	}
	if transitionErr != nil {
		s.logger.Warn("failed to mark video as processed", "video_id", videoID, "error", transitionErr)
	}

	s.notify(videoID)
}

// markSucceeded transitions a processing video to success. Redelivery of the
// terminal event, or an unknown video, is not an error. Caller holds s.mu.
func (s *Store) markSucceeded(videoID string) error {
	i := s.indexOf(videoID)
	if i < 0 {
		return nil
	}
	v := &s.videos[i]
	if v.ProcessingState == model.StateSuccess {
		return nil
	}
	if err := v.TransitionTo(model.StateSuccess, s.now()); err != nil {
		return fmt.Errorf("mark %s as %s: %w", v.ProcessingState, model.StateSuccess, err)
	}
	if p, ok := s.progress[videoID]; ok && p.FrameCount > v.FrameCount {
		v.FrameCount = p.FrameCount
	}
	return nil
}

// Subscribe registers fn for change notices. The returned func removes it.
func (s *Store) Subscribe(fn ChangeListener) func() {
	id := uuid.New()
	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(videoID string) {
	s.mu.RLock()
	listeners := make([]ChangeListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(videoID)
	}
}

// indexOf returns the position of videoID in s.videos, or -1. Caller holds s.mu.
func (s *Store) indexOf(videoID string) int {
	for i := range s.videos {
		if s.videos[i].ID == videoID {
			return i
		}
	}
	return -1
}
