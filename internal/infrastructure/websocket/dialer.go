// Package websocket implements the progress transport over the backend's
// /progress/{videoId} WebSocket endpoint.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/hszk-dev/framelens/internal/domain/repository"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
	maxMessageSize          = 4 << 20
)

// Config holds configuration for the WebSocket progress dialer.
type Config struct {
	// BaseURL is the backend origin, e.g. "ws://localhost:8000".
	// http and https schemes are converted to ws and wss.
	BaseURL          string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dialer opens one WebSocket per video against {BaseURL}/progress/{videoId}.
// It implements repository.ProgressDialer.
type Dialer struct {
	base   *url.URL
	dialer *ws.Dialer
	header http.Header
	logger *slog.Logger
}

// NewDialer validates cfg and creates a Dialer.
func NewDialer(cfg Config, logger *slog.Logger) (*Dialer, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket base URL: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported websocket scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("websocket base URL has no host")
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{
		base: base,
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		header: cfg.Header,
		logger: logger.With("component", "websocket-dialer"),
	}, nil
}

// URL returns the endpoint for videoID.
func (d *Dialer) URL(videoID string) string {
	u := *d.base
	u.Path = strings.TrimSuffix(d.base.Path, "/") + "/progress/" + videoID
	u.RawPath = strings.TrimSuffix(d.base.EscapedPath(), "/") + "/progress/" + url.PathEscape(videoID)
	return u.String()
}

// Dial connects to the progress endpoint of videoID.
func (d *Dialer) Dial(ctx context.Context, videoID string) (repository.ProgressConn, error) {
	target := d.URL(videoID)

	conn, resp, err := d.dialer.DialContext(ctx, target, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	conn.SetReadLimit(maxMessageSize)

	conn.SetCloseHandler(func(code int, text string) error {
		if code == ws.CloseNormalClosure || code == ws.CloseGoingAway {
			d.logger.Debug("server closed progress socket", "video_id", videoID, "code", code)
		} else {
			d.logger.Warn("server closed progress socket", "video_id", videoID, "code", code, "reason", text)
		}
		return nil
	})

	d.logger.Debug("progress socket connected", "video_id", videoID, "url", target)
	return &safeConn{conn: conn}, nil
}

// safeConn serializes writes and closes exactly once.
type safeConn struct {
	conn *ws.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *safeConn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() {
		return repository.ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(ws.TextMessage, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive must only be called from one goroutine at a time.
func (c *safeConn) Receive(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, repository.ErrConnClosed
	}

	// Unblock the read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if c.closed.Load() {
			return nil, repository.ErrConnClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isExpectedClose(err) {
			return nil, fmt.Errorf("progress socket closed by server: %w", err)
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	return msg, nil
}

func (c *safeConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		// WriteControl may run concurrently with an in-flight Send.
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		err = c.conn.Close()
	})
	return err
}

func isExpectedClose(err error) bool {
	var ce *ws.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "use of closed network connection")
}
