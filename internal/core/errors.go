package core

import "errors"

// Error taxonomy for the signaling surface. Handlers wrap these with context
// and callers classify with errors.Is.
var (
	// ErrNotReady marks an operation attempted before a prerequisite
	// (router, transport) exists. Retryable after backoff.
	ErrNotReady = errors.New("not ready")

	// ErrNotFound marks an unknown room/peer/transport/producer/consumer
	// identifier. Never retryable with the same identifier.
	ErrNotFound = errors.New("not found")

	// ErrRoomExists is the idempotent rejection of a duplicate createRoom.
	ErrRoomExists = errors.New("room already exists")

	// ErrUnauthorized marks a failed membership check on join.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited marks an exceeded per-connection quota. Retryable after
	// the window rolls over.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrDuplicateLabel rejects a second producer for an already-produced
	// media label.
	ErrDuplicateLabel = errors.New("producer already exists for label")

	// ErrEngine wraps media engine rejections; surfaced verbatim, not
	// retried automatically.
	ErrEngine = errors.New("media engine failure")
)
