package progress

import (
	"reflect"
	"testing"

	"github.com/hszk-dev/framelens/internal/domain/model"
)

func frameURL(idx int) string {
	return model.FramePath("v1", idx)
}

func processing(idx int) model.Event {
	return model.FrameProcessingEvent{Frame: model.FrameRef{Index: idx, URL: frameURL(idx)}}
}

func processed(idx int) model.Event {
	return model.FrameProcessedEvent{Frame: model.FrameRef{Index: idx, URL: frameURL(idx)}}
}

// mergeAll folds events into prev in order.
func mergeAll(prev model.Progress, events ...model.Event) model.Progress {
	next := prev
	for _, ev := range events {
		next = Merge(next, ev)
	}
	return next
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		prev   model.Progress
		events []model.Event
		check  func(t *testing.T, got model.Progress)
	}{
		{
			name:   "snapshot done wins over in_process for same index",
			prev:   model.NewProgress(0),
			events: []model.Event{model.SnapshotEvent{
				InProcess:   []model.FrameRef{{Index: 1, URL: "a"}},
				Done:        []model.FrameRef{{Index: 1, URL: "b"}},
				TotalFrames: 3,
			}},
			check: func(t *testing.T, got model.Progress) {
				if fs := got.Frame(1); fs.Status != model.FrameDone || fs.URL != "b" {
					t.Errorf("expected done/b, got %+v", fs)
				}
			},
		},
		{
			name: "snapshot overwrites reported keys and keeps others",
			prev: func() model.Progress {
				p := model.NewProgress(4)
				p.Frames[0] = model.FrameStatus{Status: model.FrameDone, URL: "old0"}
				p.Frames[2] = model.FrameStatus{Status: model.FrameDone, URL: "old2"}
				return p
			}(),
			events: []model.Event{model.SnapshotEvent{
				InProcess:   []model.FrameRef{{Index: 2, URL: "new2"}},
				TotalFrames: 4,
			}},
			check: func(t *testing.T, got model.Progress) {
				if fs := got.Frame(0); fs.Status != model.FrameDone || fs.URL != "old0" {
					t.Errorf("expected index 0 unchanged, got %+v", fs)
				}
				if fs := got.Frame(2); fs.Status != model.FrameProcessing || fs.URL != "new2" {
					t.Errorf("expected snapshot to overwrite index 2, got %+v", fs)
				}
			},
		},
		{
			name:   "snapshot with zero total leaves flags set",
			prev:   model.NewProgress(0),
			events: []model.Event{model.SnapshotEvent{ExtractionInProgress: true}},
			check: func(t *testing.T, got model.Progress) {
				if !got.Extracting || !got.Loading {
					t.Errorf("expected flags unchanged, got extracting=%v loading=%v", got.Extracting, got.Loading)
				}
				if got.FrameCount != 0 {
					t.Errorf("expected frame count 0, got %d", got.FrameCount)
				}
			},
		},
		{
			name:   "snapshot with total clears flags",
			prev:   model.NewProgress(0),
			events: []model.Event{model.SnapshotEvent{TotalFrames: 7}},
			check: func(t *testing.T, got model.Progress) {
				if got.Extracting || got.Loading {
					t.Error("expected flags cleared")
				}
				if got.FrameCount != 7 {
					t.Errorf("expected frame count 7, got %d", got.FrameCount)
				}
			},
		},
		{
			name: "first frame url is never replaced",
			prev: model.NewProgress(0),
			events: []model.Event{
				model.SnapshotEvent{FirstFrameURL: "first"},
				model.SnapshotEvent{FirstFrameURL: "second"},
				model.SnapshotEvent{},
			},
			check: func(t *testing.T, got model.Progress) {
				if got.FirstFrameURL != "first" {
					t.Errorf("expected first, got %q", got.FirstFrameURL)
				}
			},
		},
		{
			name: "frame count never decreases",
			prev: model.NewProgress(10),
			events: []model.Event{
				model.FramesExtractedEvent{FrameCount: 4},
				model.SnapshotEvent{TotalFrames: 6},
			},
			check: func(t *testing.T, got model.Progress) {
				if got.FrameCount != 10 {
					t.Errorf("expected frame count 10, got %d", got.FrameCount)
				}
			},
		},
		{
			name:   "frames extracted clears flags even with zero count",
			prev:   model.NewProgress(0),
			events: []model.Event{model.FramesExtractedEvent{FrameCount: 0}},
			check: func(t *testing.T, got model.Progress) {
				if got.Extracting || got.Loading {
					t.Error("expected flags cleared")
				}
			},
		},
		{
			name:   "processed after processing",
			prev:   model.NewProgress(3),
			events: []model.Event{processing(1), processed(1)},
			check: func(t *testing.T, got model.Progress) {
				if got.Frame(1).Status != model.FrameDone {
					t.Errorf("expected done, got %s", got.Frame(1).Status)
				}
			},
		},
		{
			name:   "late processing follows arrival order",
			prev:   model.NewProgress(3),
			events: []model.Event{processed(1), processing(1)},
			check: func(t *testing.T, got model.Progress) {
				if got.Frame(1).Status != model.FrameProcessing {
					t.Errorf("expected processing, got %s", got.Frame(1).Status)
				}
			},
		},
		{
			name:   "channel error clears loading and marks failure",
			prev:   model.NewProgress(0),
			events: []model.Event{model.ChannelErrorEvent{}},
			check: func(t *testing.T, got model.Progress) {
				if got.Loading {
					t.Error("expected loading cleared")
				}
				if !got.Extracting {
					t.Error("expected extracting unchanged")
				}
				if !got.ChannelFailed {
					t.Error("expected channel failure recorded")
				}
			},
		},
		{
			name:   "snapshot from a new channel clears failure",
			prev:   model.NewProgress(2),
			events: []model.Event{model.ChannelErrorEvent{}, model.SnapshotEvent{TotalFrames: 2}},
			check: func(t *testing.T, got model.Progress) {
				if got.ChannelFailed {
					t.Error("expected failure cleared by snapshot")
				}
			},
		},
		{
			name:   "frame events keep failure",
			prev:   model.NewProgress(2),
			events: []model.Event{model.ChannelErrorEvent{}, processed(0)},
			check: func(t *testing.T, got model.Progress) {
				if !got.ChannelFailed {
					t.Error("expected failure kept")
				}
			},
		},
		{
			name:   "terminal event shows player",
			prev:   model.NewProgress(2),
			events: []model.Event{model.AllFramesProcessedEvent{}, model.SnapshotEvent{TotalFrames: 2}},
			check: func(t *testing.T, got model.Progress) {
				if !got.ShowPlayer {
					t.Error("expected player shown")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mergeAll(tt.prev, tt.events...))
		})
	}
}

func TestMerge_DoesNotMutatePrev(t *testing.T) {
	prev := model.NewProgress(2)
	prev.Frames[0] = model.FrameStatus{Status: model.FrameProcessing, URL: "a"}

	_ = Merge(prev, processed(0))
	_ = Merge(prev, processing(1))

	if len(prev.Frames) != 1 || prev.Frames[0].Status != model.FrameProcessing {
		t.Errorf("prev was mutated: %+v", prev.Frames)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	seed := mergeAll(model.NewProgress(0),
		model.SnapshotEvent{TotalFrames: 4, Done: []model.FrameRef{{Index: 0, URL: "a"}}},
		processing(2),
	)

	events := []model.Event{
		model.SnapshotEvent{
			InProcess:     []model.FrameRef{{Index: 1, URL: "b"}},
			Done:          []model.FrameRef{{Index: 0, URL: "a"}},
			TotalFrames:   4,
			FirstFrameURL: "a",
		},
		model.FramesExtractedEvent{FrameCount: 6},
		processing(3),
		processed(3),
		model.AllFramesProcessedEvent{},
		model.ChannelErrorEvent{},
	}

	for _, ev := range events {
		t.Run(ev.Type().String(), func(t *testing.T) {
			once := Merge(seed, ev)
			twice := Merge(once, ev)
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
			}
		})
	}
}

func TestMerge_DifferentIndicesCommute(t *testing.T) {
	prev := model.NewProgress(5)
	a := mergeAll(prev, processed(1), processing(3))
	b := mergeAll(prev, processing(3), processed(1))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected same result, got %+v and %+v", a, b)
	}
}

func TestMerge_IngestionScenario(t *testing.T) {
	p := model.NewProgress(0)

	p = Merge(p, model.SnapshotEvent{TotalFrames: 0, ExtractionInProgress: true})
	if !p.Extracting || Ready(p) {
		t.Fatal("expected extraction placeholder after empty snapshot")
	}

	p = Merge(p, model.FramesExtractedEvent{FrameCount: 3})
	if p.FrameCount != 3 || !Ready(p) {
		t.Fatalf("expected 3 frames and ready view, got %+v", p)
	}

	for i := 0; i < 3; i++ {
		p = mergeAll(p, processing(i), processed(i))
	}
	s := Summarize(p)
	if !s.AllDone || s.DonePercent != 100 {
		t.Errorf("expected all done, got %+v", s)
	}
	if p.ShowPlayer {
		t.Error("player must wait for the terminal event")
	}

	p = Merge(p, model.AllFramesProcessedEvent{})
	if !p.ShowPlayer {
		t.Error("expected player shown")
	}
}

func TestMerge_LateSnapshotScenario(t *testing.T) {
	// An observer that attaches mid-ingestion sees a snapshot, then the tail of the stream.
	p := model.NewProgress(4)
	p = Merge(p, model.SnapshotEvent{
		InProcess:     []model.FrameRef{{Index: 2, URL: frameURL(2)}},
		Done:          []model.FrameRef{{Index: 0, URL: frameURL(0)}, {Index: 1, URL: frameURL(1)}},
		TotalFrames:   4,
		FirstFrameURL: frameURL(0),
	})
	p = mergeAll(p, processed(2), processing(3), processed(3))

	s := Summarize(p)
	if s.Done != 4 || s.Pending != 0 || s.Processing != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if PreviewFrameURL(p) != frameURL(0) {
		t.Errorf("expected preview %s, got %s", frameURL(0), PreviewFrameURL(p))
	}
}

func TestRegressed(t *testing.T) {
	prev := mergeAll(model.NewProgress(2), processed(0))

	next := Merge(prev, processing(0))
	if idx, back := regressed(prev, next, processing(0)); !back || idx != 0 {
		t.Errorf("expected regression at 0, got idx=%d back=%v", idx, back)
	}

	next = Merge(prev, processed(1))
	if _, back := regressed(prev, next, processed(1)); back {
		t.Error("forward move reported as regression")
	}

	snap := model.SnapshotEvent{InProcess: []model.FrameRef{{Index: 0}}}
	if _, back := regressed(prev, Merge(prev, snap), snap); back {
		t.Error("snapshots are authoritative and never count as regression")
	}
}
