package progress

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hszk-dev/framelens/internal/domain/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    model.Event
		wantErr error
	}{
		{
			name: "snapshot with data envelope",
			raw: `{"type":"progress_state","data":{"in_process":[{"frame_idx":2,"frame_url":"/frames/v1/frame_00003.jpg"}],` +
				`"done":[{"frame_idx":0,"frame_url":"/frames/v1/frame_00001.jpg"}],"total_frames":5,` +
				`"first_frame_url":"/frames/v1/frame_00001.jpg"},"extraction_in_progress":false}`,
			want: model.SnapshotEvent{
				InProcess:     []model.FrameRef{{Index: 2, URL: "/frames/v1/frame_00003.jpg"}},
				Done:          []model.FrameRef{{Index: 0, URL: "/frames/v1/frame_00001.jpg"}},
				TotalFrames:   5,
				FirstFrameURL: "/frames/v1/frame_00001.jpg",
			},
		},
		{
			name: "snapshot flat payload",
			raw:  `{"type":"progress_state","in_process":[],"done":[],"total_frames":0,"first_frame_url":null}`,
			want: model.SnapshotEvent{
				InProcess:            []model.FrameRef{},
				Done:                 []model.FrameRef{},
				ExtractionInProgress: true,
			},
		},
		{
			name: "snapshot skips entries without index",
			raw:  `{"type":"progress_state","data":{"done":[{"frame_url":"x"},{"frame_idx":-1},{"frame_idx":1,"frame_url":"y"}],"total_frames":2}}`,
			want: model.SnapshotEvent{
				InProcess:   []model.FrameRef{},
				Done:        []model.FrameRef{{Index: 1, URL: "y"}},
				TotalFrames: 2,
			},
		},
		{
			name: "frames extracted",
			raw:  `{"type":"frames_extracted","data":{"frame_count":12}}`,
			want: model.FramesExtractedEvent{FrameCount: 12},
		},
		{
			name: "frames extracted negative count clamped",
			raw:  `{"type":"frames_extracted","frame_count":-3}`,
			want: model.FramesExtractedEvent{FrameCount: 0},
		},
		{
			name: "frame processing flat",
			raw:  `{"type":"frame_processing","frame_idx":4,"frame_url":"/frames/v1/frame_00005.jpg"}`,
			want: model.FrameProcessingEvent{Frame: model.FrameRef{Index: 4, URL: "/frames/v1/frame_00005.jpg"}},
		},
		{
			name: "frame processed",
			raw:  `{"type":"frame_processed","data":{"frame_idx":0,"frame_url":"u"}}`,
			want: model.FrameProcessedEvent{Frame: model.FrameRef{Index: 0, URL: "u"}},
		},
		{
			name: "all frames processed",
			raw:  `{"type":"all_frames_processed"}`,
			want: model.AllFramesProcessedEvent{},
		},
		{
			name:    "not json",
			raw:     `not json`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "json array",
			raw:     `[1,2]`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing type",
			raw:     `{"data":{"frame_idx":1}}`,
			wantErr: ErrMissingType,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"something_else"}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "frame event without index",
			raw:     `{"type":"frame_processed","data":{"frame_url":"u"}}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "frame event with negative index",
			raw:     `{"type":"frame_processing","frame_idx":-2}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "data is not an object",
			raw:     `{"type":"frames_extracted","data":"12"}`,
			wantErr: ErrMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				if got != nil {
					t.Errorf("expected nil event, got %#v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestEncodeSnapshot_DecodesBack(t *testing.T) {
	in := model.SnapshotEvent{
		InProcess:            []model.FrameRef{{Index: 3, URL: "/frames/v/frame_00004.jpg"}},
		Done:                 []model.FrameRef{{Index: 0, URL: "/frames/v/frame_00001.jpg"}},
		TotalFrames:          8,
		FirstFrameURL:        "/frames/v/frame_00001.jpg",
		ExtractionInProgress: false,
	}

	raw, err := EncodeSnapshot(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("expected %#v, got %#v", in, got)
	}
}

func TestGetProgressRequest(t *testing.T) {
	req := GetProgressRequest()
	if string(req) != `{"type":"get_progress"}` {
		t.Errorf("unexpected request: %s", req)
	}
	if !IsGetProgressRequest(req) {
		t.Error("expected request to be recognized")
	}

	req[0] = 'x'
	if string(GetProgressRequest()) != `{"type":"get_progress"}` {
		t.Error("mutating a returned request must not affect later calls")
	}

	if IsGetProgressRequest([]byte(`{"type":"progress_state"}`)) {
		t.Error("expected progress_state not to be a request")
	}
}
