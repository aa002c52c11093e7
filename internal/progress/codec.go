package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hszk-dev/framelens/internal/domain/model"
)

var (
	// ErrMalformedMessage is returned for input that is not a JSON object or lacks required fields.
	ErrMalformedMessage = errors.New("malformed progress message")

	// ErrMissingType is returned when a message has no "type" field.
	ErrMissingType = errors.New("progress message has no type")

	// ErrUnknownType is returned for a "type" this client does not understand.
	ErrUnknownType = errors.New("unknown progress message type")
)

// getProgressRequest asks the server for a full progress_state snapshot.
var getProgressRequest = []byte(`{"type":"get_progress"}`)

// GetProgressRequest returns the wire form of the snapshot request.
func GetProgressRequest() []byte {
	out := make([]byte, len(getProgressRequest))
	copy(out, getProgressRequest)
	return out
}

// IsGetProgressRequest reports whether msg is a snapshot request.
func IsGetProgressRequest(msg []byte) bool {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return false
	}
	return env.Type == "get_progress"
}

// envelope is the outer shape of every message. The payload lives either
// under "data" or directly at the top level; both are accepted.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wireFrame struct {
	FrameIdx *int   `json:"frame_idx"`
	FrameURL string `json:"frame_url"`
}

type wireSnapshot struct {
	InProcess            []wireFrame `json:"in_process"`
	Done                 []wireFrame `json:"done"`
	TotalFrames          *int        `json:"total_frames"`
	FirstFrameURL        *string     `json:"first_frame_url"`
	ExtractionInProgress *bool       `json:"extraction_in_progress,omitempty"`
}

type wireFramesExtracted struct {
	FrameCount int `json:"frame_count"`
}

// Decode turns one raw server message into a typed Event.
// Any error means the message must be dropped without touching state.
func Decode(raw []byte) (model.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	payload := raw
	if data := bytes.TrimSpace(env.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if data[0] != '{' {
			return nil, fmt.Errorf("%w: data is not an object", ErrMalformedMessage)
		}
		payload = data
	}

	switch model.EventType(env.Type) {
	case model.EventProgressState:
		return decodeSnapshot(raw, payload)
	case model.EventFramesExtracted:
		var w wireFramesExtracted
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if w.FrameCount < 0 {
			w.FrameCount = 0
		}
		return model.FramesExtractedEvent{FrameCount: w.FrameCount}, nil
	case model.EventFrameProcessing:
		ref, err := decodeFrame(payload)
		if err != nil {
			return nil, err
		}
		return model.FrameProcessingEvent{Frame: ref}, nil
	case model.EventFrameProcessed:
		ref, err := decodeFrame(payload)
		if err != nil {
			return nil, err
		}
		return model.FrameProcessedEvent{Frame: ref}, nil
	case model.EventAllFramesProcessed:
		return model.AllFramesProcessedEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeFrame(payload []byte) (model.FrameRef, error) {
	var w wireFrame
	if err := json.Unmarshal(payload, &w); err != nil {
		return model.FrameRef{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.FrameIdx == nil || *w.FrameIdx < 0 {
		return model.FrameRef{}, fmt.Errorf("%w: missing or negative frame_idx", ErrMalformedMessage)
	}
	return model.FrameRef{Index: *w.FrameIdx, URL: w.FrameURL}, nil
}

func decodeSnapshot(raw, payload []byte) (model.Event, error) {
	var w wireSnapshot
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	// The backend puts extraction_in_progress next to "data" rather than inside it.
	if w.ExtractionInProgress == nil {
		var top struct {
			ExtractionInProgress *bool `json:"extraction_in_progress"`
		}
		if err := json.Unmarshal(raw, &top); err == nil {
			w.ExtractionInProgress = top.ExtractionInProgress
		}
	}

	ev := model.SnapshotEvent{
		InProcess: frameRefs(w.InProcess),
		Done:      frameRefs(w.Done),
	}
	if w.TotalFrames != nil && *w.TotalFrames > 0 {
		ev.TotalFrames = *w.TotalFrames
	}
	if w.FirstFrameURL != nil {
		ev.FirstFrameURL = *w.FirstFrameURL
	}
	if w.ExtractionInProgress != nil {
		ev.ExtractionInProgress = *w.ExtractionInProgress
	} else {
		ev.ExtractionInProgress = ev.TotalFrames == 0
	}
	return ev, nil
}

// frameRefs skips entries without a usable index rather than rejecting the snapshot.
func frameRefs(in []wireFrame) []model.FrameRef {
	out := make([]model.FrameRef, 0, len(in))
	for _, f := range in {
		if f.FrameIdx == nil || *f.FrameIdx < 0 {
			continue
		}
		out = append(out, model.FrameRef{Index: *f.FrameIdx, URL: f.FrameURL})
	}
	return out
}

// EncodeSnapshot renders a snapshot in the backend's progress_state shape.
// Used by transports that answer get_progress locally.
func EncodeSnapshot(ev model.SnapshotEvent) ([]byte, error) {
	data := wireSnapshot{
		InProcess: toWireFrames(ev.InProcess),
		Done:      toWireFrames(ev.Done),
	}
	total := ev.TotalFrames
	data.TotalFrames = &total
	if ev.FirstFrameURL != "" {
		first := ev.FirstFrameURL
		data.FirstFrameURL = &first
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot data: %w", err)
	}

	return json.Marshal(struct {
		Type                 string          `json:"type"`
		Data                 json.RawMessage `json:"data"`
		ExtractionInProgress bool            `json:"extraction_in_progress"`
	}{
		Type:                 string(model.EventProgressState),
		Data:                 dataJSON,
		ExtractionInProgress: ev.ExtractionInProgress,
	})
}

func toWireFrames(refs []model.FrameRef) []wireFrame {
	out := make([]wireFrame, 0, len(refs))
	for _, r := range refs {
		idx := r.Index
		out = append(out, wireFrame{FrameIdx: &idx, FrameURL: r.URL})
	}
	return out
}
