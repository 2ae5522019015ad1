package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cascade-audio/cascade/pkg/stream"
)

// Server event types sent to the client.
const (
	EventTypeSessionCreated = "session.created"
	EventTypeFrame          = "frame"
	EventTypeSegment        = "segment"
	EventTypeInterruption   = "interruption"
	EventTypeStats          = "stats"
	EventTypeStateUpdated   = "state.updated"
	EventTypeError          = "error"
)

// Client event types.
const (
	ClientEventSetState   = "set_state"
	ClientEventGetStats   = "get_stats"
	ClientEventReset      = "reset"
	ClientEventResetStats = "reset_stats"
)

// ServerEvent is the envelope for every JSON message sent to the client.
// Exactly one payload field is set, according to Type.
type ServerEvent struct {
	Type         string               `json:"type"`
	SessionID    string               `json:"session_id,omitempty"`
	Frame        *FramePayload        `json:"frame,omitempty"`
	Segment      *SegmentPayload      `json:"segment,omitempty"`
	Interruption *InterruptionPayload `json:"interruption,omitempty"`
	Stats        *StatsPayload        `json:"stats,omitempty"`
	State        string               `json:"state,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
}

// FramePayload describes a single non-speech frame.
type FramePayload struct {
	ID          int64   `json:"id"`
	TimestampMs float64 `json:"timestamp_ms"`
}

// SegmentPayload describes a finished speech segment. Audio is the
// segment's PCM, base64-encoded.
type SegmentPayload struct {
	ID               int     `json:"id"`
	StartTimestampMs float64 `json:"start_timestamp_ms"`
	EndTimestampMs   float64 `json:"end_timestamp_ms"`
	DurationMs       float64 `json:"duration_ms"`
	FrameCount       int     `json:"frame_count"`
	Audio            string  `json:"audio"`
}

// InterruptionPayload describes a barge-in.
type InterruptionPayload struct {
	TimestampMs float64 `json:"timestamp_ms"`
	PriorState  string  `json:"prior_state"`
}

// StatsPayload carries session and arbiter counters.
type StatsPayload struct {
	Session   stream.SessionStats   `json:"session"`
	Interrupt stream.InterruptStats `json:"interrupt"`
}

// ErrorPayload describes a processing or protocol error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClientEvent is a control message from the client. Audio does not use
// this envelope; it is sent as binary WebSocket messages.
type ClientEvent struct {
	Type  string `json:"type"`
	State string `json:"state,omitempty"`
}

// ParseClientEvent decodes a control message.
func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var event ClientEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parse client event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("parse client event: missing type")
	}
	return &event, nil
}

// ParseSystemState maps a wire state name onto a stream.SystemState.
func ParseSystemState(name string) (stream.SystemState, error) {
	switch name {
	case "idle":
		return stream.SystemStateIdle, nil
	case "collecting":
		return stream.SystemStateCollecting, nil
	case "processing":
		return stream.SystemStateProcessing, nil
	case "responding":
		return stream.SystemStateResponding, nil
	default:
		return stream.SystemStateIdle, fmt.Errorf("unknown system state %q", name)
	}
}

// NewResultEvent converts a pipeline result into its wire form.
func NewResultEvent(sessionID string, res stream.Result) *ServerEvent {
	switch res.Type {
	case stream.ResultFrame:
		return &ServerEvent{
			Type:      EventTypeFrame,
			SessionID: sessionID,
			Frame: &FramePayload{
				ID:          res.Frame.ID,
				TimestampMs: res.Frame.TimestampMs,
			},
		}
	case stream.ResultSegment:
		return &ServerEvent{
			Type:      EventTypeSegment,
			SessionID: sessionID,
			Segment: &SegmentPayload{
				ID:               res.Segment.ID,
				StartTimestampMs: res.Segment.StartTimestampMs,
				EndTimestampMs:   res.Segment.EndTimestampMs,
				DurationMs:       res.Segment.DurationMs(),
				FrameCount:       res.Segment.FrameCount(),
				Audio:            base64.StdEncoding.EncodeToString(res.Segment.PCM()),
			},
		}
	case stream.ResultInterruption:
		return &ServerEvent{
			Type:      EventTypeInterruption,
			SessionID: sessionID,
			Interruption: &InterruptionPayload{
				TimestampMs: res.Interruption.TimestampMs,
				PriorState:  res.Interruption.PriorState.String(),
			},
		}
	default:
		return &ServerEvent{
			Type:      EventTypeError,
			SessionID: sessionID,
			Error:     &ErrorPayload{Code: "internal", Message: "unknown result type"},
		}
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(sessionID, code, message string) *ServerEvent {
	return &ServerEvent{
		Type:      EventTypeError,
		SessionID: sessionID,
		Error:     &ErrorPayload{Code: code, Message: message},
	}
}
