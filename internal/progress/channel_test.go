package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestChannel_RequestsSnapshotAndFansOut(t *testing.T) {
	dialer := newFakeDialer()
	ch := newChannel("v1", dialer, discardLogger)

	first, second := newEventRecorder(), newEventRecorder()
	ch.Subscribe(first.listen)
	ch.Subscribe(second.listen)
	ch.start()
	defer ch.Close()

	waitOpen(t, ch)
	conn := dialer.connsFor("v1")[0]
	if msg := waitSent(t, conn); !IsGetProgressRequest(msg) {
		t.Fatalf("expected get_progress, got %s", msg)
	}

	conn.push(`{"type":"frames_extracted","data":{"frame_count":3}}`)
	conn.push(`garbage`)
	conn.push(`{"type":"nope"}`)
	conn.push(`{"type":"frame_processed","data":{"frame_idx":1,"frame_url":"u"}}`)

	for _, rec := range []*eventRecorder{first, second} {
		if ev := rec.next(t); ev != (model.FramesExtractedEvent{FrameCount: 3}) {
			t.Errorf("expected frames_extracted, got %#v", ev)
		}
		if ev := rec.next(t); ev != (model.FrameProcessedEvent{Frame: model.FrameRef{Index: 1, URL: "u"}}) {
			t.Errorf("expected frame_processed, got %#v", ev)
		}
		rec.none(t)
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	dialer := newFakeDialer()
	ch := newChannel("v1", dialer, discardLogger)

	kept, dropped := newEventRecorder(), newEventRecorder()
	ch.Subscribe(kept.listen)
	sub := ch.Subscribe(dropped.listen)
	ch.start()
	defer ch.Close()

	waitOpen(t, ch)
	conn := dialer.connsFor("v1")[0]
	waitSent(t, conn)

	sub.Unsubscribe()
	sub.Unsubscribe()

	conn.push(`{"type":"all_frames_processed"}`)
	if ev := kept.next(t); ev.Type() != model.EventAllFramesProcessed {
		t.Errorf("unexpected event %#v", ev)
	}
	dropped.none(t)
}

func TestChannel_DialFailureEmitsChannelError(t *testing.T) {
	dialErr := errors.New("connection refused")
	dialer := newFakeDialer()
	dialer.dialFn = func(ctx context.Context, videoID string) (repository.ProgressConn, error) {
		return nil, dialErr
	}

	ch := newChannel("v1", dialer, discardLogger)
	rec := newEventRecorder()
	ch.Subscribe(rec.listen)
	ch.start()

	ev, ok := rec.next(t).(model.ChannelErrorEvent)
	if !ok {
		t.Fatalf("expected channel error, got %#v", ev)
	}
	if !errors.Is(ev.Err, dialErr) {
		t.Errorf("expected %v, got %v", dialErr, ev.Err)
	}
	if ch.IsOpen() {
		t.Error("failed channel must not report open")
	}

	select {
	case <-ch.Done():
	case <-time.After(testTimeout):
		t.Fatal("reader did not exit")
	}
}

func TestChannel_TransportDropEmitsChannelError(t *testing.T) {
	dialer := newFakeDialer()
	ch := newChannel("v1", dialer, discardLogger)
	rec := newEventRecorder()
	ch.Subscribe(rec.listen)
	ch.start()
	defer ch.Close()

	waitOpen(t, ch)
	conn := dialer.connsFor("v1")[0]
	waitSent(t, conn)

	// Server side goes away.
	conn.Close()

	if ev := rec.next(t); ev.Type() != model.EventChannelError {
		t.Fatalf("expected channel error, got %#v", ev)
	}
	rec.none(t)
	if len(dialer.dials) != 1 {
		t.Errorf("expected no reconnect, got %d dials", len(dialer.dials))
	}
}

func TestChannel_CloseIsQuietAndIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	ch := newChannel("v1", dialer, discardLogger)
	rec := newEventRecorder()
	ch.Subscribe(rec.listen)
	ch.start()

	waitOpen(t, ch)
	conn := dialer.connsFor("v1")[0]
	waitSent(t, conn)

	if err := ch.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}

	select {
	case <-ch.Done():
	case <-time.After(testTimeout):
		t.Fatal("reader did not exit")
	}
	rec.none(t)
	if conn.closes() != 1 {
		t.Errorf("expected one close, got %d", conn.closes())
	}
	if ch.IsOpen() {
		t.Error("closed channel must not report open")
	}
}

func TestChannel_CloseWhileConnecting(t *testing.T) {
	dialer := newFakeDialer()
	dialer.dialFn = func(ctx context.Context, videoID string) (repository.ProgressConn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ch := newChannel("v1", dialer, discardLogger)
	rec := newEventRecorder()
	ch.Subscribe(rec.listen)
	ch.start()

	<-dialer.dials
	ch.Close()

	select {
	case <-ch.Done():
	case <-time.After(testTimeout):
		t.Fatal("reader did not exit")
	}
	rec.none(t)
}
