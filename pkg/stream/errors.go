package stream

import "errors"

// Sentinel errors for the session lifecycle and input validation.
// Callers distinguish categories with errors.Is.
var (
	// ErrInvalidConfig is returned at construction for out-of-range
	// configuration values. The instance is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotInitialized is returned when processing is attempted before
	// Initialize or after Close.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrOddChunk is returned for chunks whose byte length is not a whole
	// number of 16-bit samples. The chunk is rejected before any buffering.
	ErrOddChunk = errors.New("chunk size must be an even number of bytes")

	// ErrChunkTooLarge is returned for chunks above MaxChunkBytes.
	// The chunk is rejected before any buffering.
	ErrChunkTooLarge = errors.New("chunk exceeds maximum size")

	// ErrProcessing wraps a classifier failure during chunk processing.
	// The session's error counter is incremented; results produced for
	// earlier frames of the same chunk are still returned.
	ErrProcessing = errors.New("chunk processing failed")

	// ErrCleanup wraps a teardown failure. The session is marked closed
	// regardless, so callers can always retire it.
	ErrCleanup = errors.New("session cleanup failed")
)
