package model

// FrameState is the indexing state of a single extracted frame.
type FrameState string

const (
	FramePending    FrameState = "pending"
	FrameProcessing FrameState = "processing"
	FrameDone       FrameState = "done"
)

func (s FrameState) String() string {
	return string(s)
}

// rank orders frame states along pending -> processing -> done.
func (s FrameState) rank() int {
	switch s {
	case FrameProcessing:
		return 1
	case FrameDone:
		return 2
	default:
		return 0
	}
}

// Before reports whether s comes strictly earlier than other in the
// pending -> processing -> done progression.
func (s FrameState) Before(other FrameState) bool {
	return s.rank() < other.rank()
}

// FrameStatus is the known state of one frame index.
// URL is set once the thumbnail exists.
type FrameStatus struct {
	Status FrameState
	URL    string
}

// Progress is the merged view of one video's ingestion.
//
// Frames holds only indices that some event reported; every other index in
// 0..FrameCount-1 is implicitly pending.
type Progress struct {
	FrameCount    int
	Frames        map[int]FrameStatus
	ShowPlayer    bool
	FirstFrameURL string

	// Extracting and Loading start out true and are only ever cleared.
	Extracting bool
	Loading    bool

	// ChannelFailed is set when the progress channel died. A snapshot from
	// a new channel clears it.
	ChannelFailed bool
}

// NewProgress returns the initial progress for a video whose frame count
// may already be known from its metadata.
func NewProgress(frameCount int) Progress {
	if frameCount < 0 {
		frameCount = 0
	}
	return Progress{
		FrameCount: frameCount,
		Frames:     map[int]FrameStatus{},
		Extracting: true,
		Loading:    true,
	}
}

// Frame returns the status of index idx, pending when unreported.
func (p Progress) Frame(idx int) FrameStatus {
	if fs, ok := p.Frames[idx]; ok {
		return fs
	}
	return FrameStatus{Status: FramePending}
}

// Clone returns a deep copy so callers can never alias the frame map.
func (p Progress) Clone() Progress {
	out := p
	out.Frames = make(map[int]FrameStatus, len(p.Frames))
	for idx, fs := range p.Frames {
		out.Frames[idx] = fs
	}
	return out
}
