package usecase

import (
	"context"
	"io"
	"sync"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
)

// mockVideoAPI provides a configurable mock for VideoAPI.
type mockVideoAPI struct {
	listVideosFn func(ctx context.Context) ([]model.Video, error)
	uploadFn     func(ctx context.Context, fileName string, r io.Reader) (string, error)
	renameFn     func(ctx context.Context, videoID, name string) error
	deleteFn     func(ctx context.Context, videoID string) error
	searchFn     func(ctx context.Context, query string, videoIDs []string) ([]repository.SearchResult, error)
}

func (m *mockVideoAPI) ListVideos(ctx context.Context) ([]model.Video, error) {
	if m.listVideosFn != nil {
		return m.listVideosFn(ctx)
	}
	return nil, nil
}

func (m *mockVideoAPI) Upload(ctx context.Context, fileName string, r io.Reader) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, fileName, r)
	}
	return "video-id", nil
}

func (m *mockVideoAPI) Rename(ctx context.Context, videoID, name string) error {
	if m.renameFn != nil {
		return m.renameFn(ctx, videoID, name)
	}
	return nil
}

func (m *mockVideoAPI) Delete(ctx context.Context, videoID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, videoID)
	}
	return nil
}

func (m *mockVideoAPI) Search(ctx context.Context, query string, videoIDs []string) ([]repository.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, videoIDs)
	}
	return nil, nil
}

// mockAssetResolver provides a configurable mock for AssetResolver.
type mockAssetResolver struct {
	resolveURLFn func(ctx context.Context, assetPath string) (string, error)
}

func (m *mockAssetResolver) ResolveURL(ctx context.Context, assetPath string) (string, error) {
	if m.resolveURLFn != nil {
		return m.resolveURLFn(ctx, assetPath)
	}
	return "http://assets.local" + assetPath, nil
}

// mockProgressConn delivers pushed messages until closed.
type mockProgressConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newMockProgressConn() *mockProgressConn {
	return &mockProgressConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *mockProgressConn) Send(ctx context.Context, msg []byte) error {
	return nil
}

func (c *mockProgressConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return nil, repository.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *mockProgressConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// mockProgressDialer opens mockProgressConns and records them per video.
type mockProgressDialer struct {
	mu    sync.Mutex
	conns map[string][]*mockProgressConn
}

func newMockProgressDialer() *mockProgressDialer {
	return &mockProgressDialer{conns: make(map[string][]*mockProgressConn)}
}

func (d *mockProgressDialer) Dial(ctx context.Context, videoID string) (repository.ProgressConn, error) {
	conn := newMockProgressConn()
	d.mu.Lock()
	d.conns[videoID] = append(d.conns[videoID], conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *mockProgressDialer) dialed(videoID string) []*mockProgressConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*mockProgressConn, len(d.conns[videoID]))
	copy(out, d.conns[videoID])
	return out
}
