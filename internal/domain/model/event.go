package model

// EventType is the wire "type" of a progress message.
type EventType string

const (
	EventProgressState      EventType = "progress_state"
	EventFramesExtracted    EventType = "frames_extracted"
	EventFrameProcessing    EventType = "frame_processing"
	EventFrameProcessed     EventType = "frame_processed"
	EventAllFramesProcessed EventType = "all_frames_processed"

	// EventChannelError never appears on the wire. The channel emits it
	// when its transport fails.
	EventChannelError EventType = "channel_error"
)

func (t EventType) String() string {
	return string(t)
}

// Event is one immutable fact about a video's ingestion pipeline.
// The concrete types below are the complete set.
type Event interface {
	Type() EventType
	isEvent()
}

// FrameRef identifies a frame and its thumbnail URL.
type FrameRef struct {
	Index int
	URL   string
}

// SnapshotEvent is a full progress_state report.
type SnapshotEvent struct {
	InProcess            []FrameRef
	Done                 []FrameRef
	TotalFrames          int
	FirstFrameURL        string
	ExtractionInProgress bool
}

// FramesExtractedEvent signals that extraction finished and the frame count is known.
type FramesExtractedEvent struct {
	FrameCount int
}

// FrameProcessingEvent signals that one frame entered indexing.
type FrameProcessingEvent struct {
	Frame FrameRef
}

// FrameProcessedEvent signals that one frame finished indexing.
type FrameProcessedEvent struct {
	Frame FrameRef
}

// AllFramesProcessedEvent is the terminal event of a video's ingestion.
type AllFramesProcessedEvent struct{}

// ChannelErrorEvent reports a transport failure of the progress channel.
type ChannelErrorEvent struct {
	Err error
}

func (SnapshotEvent) Type() EventType           { return EventProgressState }
func (FramesExtractedEvent) Type() EventType    { return EventFramesExtracted }
func (FrameProcessingEvent) Type() EventType    { return EventFrameProcessing }
func (FrameProcessedEvent) Type() EventType     { return EventFrameProcessed }
func (AllFramesProcessedEvent) Type() EventType { return EventAllFramesProcessed }
func (ChannelErrorEvent) Type() EventType       { return EventChannelError }

func (SnapshotEvent) isEvent()           {}
func (FramesExtractedEvent) isEvent()    {}
func (FrameProcessingEvent) isEvent()    {}
func (FrameProcessedEvent) isEvent()     {}
func (AllFramesProcessedEvent) isEvent() {}
func (ChannelErrorEvent) isEvent()       {}
