package repository

import "context"

// ProgressConn is one streaming connection carrying a single video's progress messages.
// Implementations are provided by the infrastructure layer (WebSocket, Redis pub/sub).
type ProgressConn interface {
	// Send writes one client message (e.g. {"type":"get_progress"}).
	Send(ctx context.Context, msg []byte) error

	// Receive blocks until the next raw server message arrives.
	// Returns ErrConnClosed once Close has been called.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// ProgressDialer opens progress connections keyed by video ID.
type ProgressDialer interface {
	Dial(ctx context.Context, videoID string) (ProgressConn, error)
}
