package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Session attributes
	AttrSessionID = "session.id"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChunkSize  = "audio.chunk_size"

	// Segment attributes
	AttrSegmentID     = "segment.id"
	AttrSegmentFrames = "segment.frames"
	AttrSegmentDurMs  = "segment.duration_ms"

	// Interruption attributes
	AttrInterruptTimestampMs = "interrupt.timestamp_ms"
	AttrInterruptPriorState  = "interrupt.prior_state"

	// Connection attributes
	AttrConnectionID    = "connection.id"
	AttrConnectionType  = "connection.type"
	AttrConnectionState = "connection.state"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Helper functions to create common attributes

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// ChunkAttrs creates attributes for one audio chunk
func ChunkAttrs(sessionID string, sampleRate, chunkSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChunkSize, chunkSize),
	}
}

// SegmentAttrs creates attributes for a finished speech segment
func SegmentAttrs(segmentID int64, frames int, durationMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrSegmentID, segmentID),
		attribute.Int(AttrSegmentFrames, frames),
		attribute.Float64(AttrSegmentDurMs, durationMs),
	}
}

// InterruptAttrs creates attributes for a barge-in event
func InterruptAttrs(timestampMs float64, priorState string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(AttrInterruptTimestampMs, timestampMs),
		attribute.String(AttrInterruptPriorState, priorState),
	}
}

// ConnectionAttrs creates attributes for connection information
func ConnectionAttrs(connID, connType, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConnectionID, connID),
		attribute.String(AttrConnectionType, connType),
		attribute.String(AttrConnectionState, state),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
