package model

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ProcessingState represents the ingestion state of a video as reported by the backend.
type ProcessingState string

const (
	StateProcessing ProcessingState = "processing"
	StateSuccess    ProcessingState = "success"
	StateFailed     ProcessingState = "failed"
)

// Valid state transitions:
// processing -> success
//            \-> failed
var validTransitions = map[ProcessingState][]ProcessingState{
	StateProcessing: {StateSuccess, StateFailed},
	StateSuccess:    {},
	StateFailed:     {},
}

func (s ProcessingState) IsValid() bool {
	switch s {
	case StateProcessing, StateSuccess, StateFailed:
		return true
	default:
		return false
	}
}

func (s ProcessingState) CanTransitionTo(next ProcessingState) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further progress events are expected.
func (s ProcessingState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

func (s ProcessingState) String() string {
	return string(s)
}

// Video is the metadata of one uploaded video.
type Video struct {
	ID              string
	Name            string
	ProcessingState ProcessingState
	FrameCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var (
	ErrEmptyVideoID      = errors.New("video ID cannot be empty")
	ErrEmptyName         = errors.New("video name cannot be empty")
	ErrNameTooLong       = errors.New("video name exceeds maximum length of 255 characters")
	ErrInvalidTransition = errors.New("invalid processing state transition")
)

const maxNameLength = 255

// NewVideo creates a Video in the processing state.
// It is used for the optimistic insert right after an upload is accepted.
func NewVideo(id, name string, now time.Time) (*Video, error) {
	if id == "" {
		return nil, ErrEmptyVideoID
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	return &Video{
		ID:              id,
		Name:            name,
		ProcessingState: StateProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// TransitionTo attempts to change the processing state.
// Returns error if the transition is not allowed.
func (v *Video) TransitionTo(next ProcessingState, now time.Time) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !v.ProcessingState.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	v.ProcessingState = next
	v.UpdatedAt = now
	return nil
}

// Rename changes the display name of the video.
func (v *Video) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return err
	}
	v.Name = name
	v.UpdatedAt = now
	return nil
}

// IsProcessing returns true while ingestion is still running.
func (v *Video) IsProcessing() bool {
	return v.ProcessingState == StateProcessing
}

// ValidateName checks a display name before it is sent anywhere.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// SortByCreatedDesc returns a copy of videos ordered newest first.
// Display order is a presentation concern; stored order is never relied on.
func SortByCreatedDesc(videos []Video) []Video {
	sorted := make([]Video, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}
