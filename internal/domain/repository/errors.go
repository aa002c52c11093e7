package repository

import "errors"

var (
	// ErrVideoNotFound is returned when the backend does not know a video.
	ErrVideoNotFound = errors.New("video not found")

	// ErrBackendUnavailable is returned when the backend API answers with a server error.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrObjectNotFound is returned when an asset object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured asset bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrConnClosed is returned by a ProgressConn after Close.
	ErrConnClosed = errors.New("progress connection closed")
)
