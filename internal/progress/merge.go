// Package progress keeps per-video ingestion progress in sync with the backend.
//
// A Registry shares one Channel per video ID between any number of observers.
// Each Channel decodes server messages into model.Event values, and Merge folds
// those events into a model.Progress. Merge is pure and idempotent: every
// event fully specifies the value of the keys it touches.
package progress

import "github.com/hszk-dev/framelens/internal/domain/model"

// Merge applies ev to prev and returns the next progress. prev is never mutated.
//
// Keys reported by an event overwrite prior values; keys it does not mention
// keep theirs. Incremental frame events follow arrival order (last write wins),
// so a frame_processing that arrives after frame_processed for the same index
// moves that frame back to processing. The stream carries no sequence numbers
// to do better.
func Merge(prev model.Progress, ev model.Event) model.Progress {
	next := prev.Clone()

	switch e := ev.(type) {
	case model.SnapshotEvent:
		reported := make(map[int]model.FrameStatus, len(e.InProcess)+len(e.Done))
		for _, f := range e.InProcess {
			reported[f.Index] = model.FrameStatus{Status: model.FrameProcessing, URL: f.URL}
		}
		// done wins over in_process for the same index
		for _, f := range e.Done {
			reported[f.Index] = model.FrameStatus{Status: model.FrameDone, URL: f.URL}
		}
		for idx, fs := range reported {
			next.Frames[idx] = fs
		}
		if e.TotalFrames > 0 {
			next.FrameCount = max(next.FrameCount, e.TotalFrames)
			next.Extracting = false
			next.Loading = false
		}
		if next.FirstFrameURL == "" {
			next.FirstFrameURL = e.FirstFrameURL
		}
		next.ChannelFailed = false

	case model.FramesExtractedEvent:
		next.FrameCount = max(next.FrameCount, e.FrameCount)
		next.Extracting = false
		next.Loading = false

	case model.FrameProcessingEvent:
		next.Frames[e.Frame.Index] = model.FrameStatus{Status: model.FrameProcessing, URL: e.Frame.URL}

	case model.FrameProcessedEvent:
		next.Frames[e.Frame.Index] = model.FrameStatus{Status: model.FrameDone, URL: e.Frame.URL}

	case model.AllFramesProcessedEvent:
		next.ShowPlayer = true

	case model.ChannelErrorEvent:
		next.Loading = false
		next.ChannelFailed = true
	}

	return next
}

// regressed reports whether applying ev moved a frame backwards along
// pending -> processing -> done.
func regressed(prev, next model.Progress, ev model.Event) (int, bool) {
	var idx int
	switch e := ev.(type) {
	case model.FrameProcessingEvent:
		idx = e.Frame.Index
	case model.FrameProcessedEvent:
		idx = e.Frame.Index
	default:
		return 0, false
	}
	return idx, next.Frame(idx).Status.Before(prev.Frame(idx).Status)
}
