// Package stream segments a continuous PCM audio stream into discrete speech
// utterances and detects barge-in: a user starting to speak while the
// surrounding dialogue system is processing or responding.
//
// One Session serves one audio source (typically one live connection) and
// holds no state shared with other sessions. Raw bytes flow through a
// frame-aligned buffer, each complete frame is classified by a vad.Classifier,
// and a small state machine turns the verdicts into frame, segment and
// interruption results.
package stream

import (
	"fmt"

	"github.com/cascade-audio/cascade/pkg/vad"
)

const (
	// SampleRate is the fixed input sample rate in Hz.
	SampleRate = 16000
	// FrameSamples is the number of samples in one classification frame.
	FrameSamples = 512
	// FrameDurationMs is the duration of one frame (32ms at 16kHz).
	FrameDurationMs = float64(FrameSamples) * 1000 / SampleRate
	// MaxChunkBytes is the hard cap on a single input chunk (512 KiB).
	MaxChunkBytes = 512 * 1024
)

// Frame is one fixed-size block of audio with its classification verdict.
// Frame ids start at 1 and increase without gaps; Session.Reset restarts
// the numbering.
type Frame struct {
	ID          int64
	Data        []byte // raw 16-bit little-endian PCM, FrameSamples samples
	TimestampMs float64
	Verdict     vad.Verdict
}

// Segment is a finalized contiguous run of frames bounded by a speech-start
// and a speech-end verdict: one spoken utterance.
type Segment struct {
	ID               int
	Frames           []Frame
	StartTimestampMs float64
	EndTimestampMs   float64
}

// DurationMs returns the segment length in milliseconds.
func (s *Segment) DurationMs() float64 {
	return s.EndTimestampMs - s.StartTimestampMs
}

// FrameCount returns the number of member frames.
func (s *Segment) FrameCount() int {
	return len(s.Frames)
}

// PCM returns the segment's audio as one concatenated byte slice.
func (s *Segment) PCM() []byte {
	size := 0
	for i := range s.Frames {
		size += len(s.Frames[i].Data)
	}
	out := make([]byte, 0, size)
	for i := range s.Frames {
		out = append(out, s.Frames[i].Data...)
	}
	return out
}

// InterruptionEvent records a user barge-in: speech started while the system
// was processing or responding.
type InterruptionEvent struct {
	TimestampMs float64
	PriorState  SystemState
}

// ResultType tags the variant carried by a Result.
type ResultType int

const (
	// ResultFrame is a single frame outside any speech segment.
	ResultFrame ResultType = iota
	// ResultSegment is a finalized speech segment.
	ResultSegment
	// ResultInterruption is a barge-in notification.
	ResultInterruption
)

// String returns the result type's string representation.
func (t ResultType) String() string {
	switch t {
	case ResultFrame:
		return "frame"
	case ResultSegment:
		return "segment"
	case ResultInterruption:
		return "interruption"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one frame. Exactly one of Frame,
// Segment or Interruption is set, according to Type.
type Result struct {
	Type         ResultType
	Frame        *Frame
	Segment      *Segment
	Interruption *InterruptionEvent
}

// String renders the result for logs.
func (r *Result) String() string {
	switch r.Type {
	case ResultFrame:
		return fmt.Sprintf("frame(id=%d)", r.Frame.ID)
	case ResultSegment:
		return fmt.Sprintf("segment(id=%d, frames=%d, %.0fms)",
			r.Segment.ID, r.Segment.FrameCount(), r.Segment.DurationMs())
	case ResultInterruption:
		return fmt.Sprintf("interruption(at=%.0fms, prior=%s)",
			r.Interruption.TimestampMs, r.Interruption.PriorState)
	default:
		return "unknown"
	}
}

// SessionStats is a snapshot of a session's processing counters and the
// metrics derived from them.
type SessionStats struct {
	ChunksProcessed   int64   `json:"chunks_processed"`
	TotalProcessingMs float64 `json:"total_processing_ms"`
	AvgProcessingMs   float64 `json:"avg_processing_ms"`
	SpeechSegments    int64   `json:"speech_segments"`
	SingleFrames      int64   `json:"single_frames"`
	SpeechRatio       float64 `json:"speech_ratio"`
	ThroughputPerSec  float64 `json:"throughput_chunks_per_sec"`
	ErrorCount        int64   `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
}
