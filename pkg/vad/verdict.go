// Package vad provides voice activity detection for 16-bit PCM audio.
//
// The package is organized in two layers. DetectorInterface produces a raw
// speech probability per frame; Iterator turns those probabilities into
// Start/End verdicts with hysteresis and silence debouncing. Classifier is
// the verdict-level contract consumed by the stream package.
//
// The ONNX-backed Silero detector and classifier require the 'vad' build
// tag and an installed ONNX Runtime:
//
//	// Initialize the ONNX runtime (call once at startup)
//	if err := vad.InitRuntime(""); err != nil {
//	    log.Fatal(err)
//	}
//	defer vad.DestroyRuntime()
//
//	detector, err := vad.NewDetector(vad.DetectorConfig{
//	    ModelPath:  "path/to/silero_vad.onnx",
//	    SampleRate: 16000,
//	})
package vad

import "fmt"

// VerdictKind identifies the per-frame classification outcome.
type VerdictKind int

const (
	// VerdictNone means no change in voice activity for this frame.
	VerdictNone VerdictKind = iota
	// VerdictStart marks the frame where speech begins.
	VerdictStart
	// VerdictEnd marks the frame where speech ends.
	VerdictEnd
)

// String returns the kind's string representation.
func (k VerdictKind) String() string {
	switch k {
	case VerdictNone:
		return "None"
	case VerdictStart:
		return "Start"
	case VerdictEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// Verdict is the classifier's decision for one frame. Start and End carry
// the millisecond position in the stream where the boundary was detected.
type Verdict struct {
	Kind        VerdictKind
	TimestampMs float64
}

// None returns a no-activity verdict.
func None() Verdict {
	return Verdict{Kind: VerdictNone}
}

// Start returns a speech-start verdict at the given stream position.
func Start(timestampMs float64) Verdict {
	return Verdict{Kind: VerdictStart, TimestampMs: timestampMs}
}

// End returns a speech-end verdict at the given stream position.
func End(timestampMs float64) Verdict {
	return Verdict{Kind: VerdictEnd, TimestampMs: timestampMs}
}

// String renders the verdict for logs.
func (v Verdict) String() string {
	if v.Kind == VerdictNone {
		return "None"
	}
	return fmt.Sprintf("%s@%.0fms", v.Kind, v.TimestampMs)
}

// Classifier is the per-frame voice activity oracle. Implementations are
// stateful across calls within one audio stream (smoothing, hysteresis) and
// must be fed frames in order by a single caller.
type Classifier interface {
	// Classify inspects one frame of normalized float32 samples in [-1, 1]
	// and returns a verdict.
	Classify(samples []float32) (Verdict, error)

	// ResetState clears accumulated stream state.
	// Call when starting a new audio stream.
	ResetState() error

	// Close releases any resources held by the classifier.
	Close() error
}
