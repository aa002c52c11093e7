// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "framelens"

var (
	// CacheOperationsTotal tracks video list cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// ProgressChannelsActive tracks progress channels currently held by a registry.
	ProgressChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_channels_active",
			Help:      "Number of progress channels currently open or connecting",
		},
	)

	// RegistryOperationsTotal tracks acquire/release calls on the connection registry.
	// Labels:
	//   - operation: acquire, release
	//   - result: created, shared, retained, closed, unknown, rejected
	RegistryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Total number of connection registry operations",
		},
		[]string{"operation", "result"},
	)

	// ProgressEventsTotal tracks decoded progress events.
	// Labels:
	//   - type: progress_state, frames_extracted, frame_processing, frame_processed,
	//     all_frames_processed, channel_error
	ProgressEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_total",
			Help:      "Total number of progress events delivered to listeners",
		},
		[]string{"type"},
	)

	// ProgressMessagesDroppedTotal tracks inbound messages that were discarded.
	// Labels:
	//   - reason: malformed, missing_type, unknown_type
	ProgressMessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_messages_dropped_total",
			Help:      "Total number of progress messages dropped before decoding to an event",
		},
		[]string{"reason"},
	)

	// FrameRegressionsTotal counts incremental events that moved a frame backwards.
	FrameRegressionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_regressions_total",
			Help:      "Total number of out-of-order frame events applied",
		},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// BackendRequestsTotal tracks calls to the backend REST API.
	// Labels:
	//   - operation: list, upload, rename, delete, search
	//   - status: success, error
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend API requests",
		},
		[]string{"operation", "status"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// Registry operation constants.
const (
	RegistryOpAcquire = "acquire"
	RegistryOpRelease = "release"
)

// Registry result constants.
const (
	RegistryResultCreated  = "created"
	RegistryResultShared   = "shared"
	RegistryResultRetained = "retained"
	RegistryResultClosed   = "closed"
	RegistryResultUnknown  = "unknown"
	RegistryResultRejected = "rejected"
)

// Drop reason constants.
const (
	DropReasonMalformed   = "malformed"
	DropReasonMissingType = "missing_type"
	DropReasonUnknownType = "unknown_type"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Backend operation constants.
const (
	BackendOpList   = "list"
	BackendOpUpload = "upload"
	BackendOpRename = "rename"
	BackendOpDelete = "delete"
	BackendOpSearch = "search"
)

// Backend status constants.
const (
	BackendStatusSuccess = "success"
	BackendStatusError   = "error"
)
