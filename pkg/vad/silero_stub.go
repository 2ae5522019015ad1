//go:build !vad

package vad

import "fmt"

// SileroConfig holds configuration for the silero-vad-go backed classifier.
type SileroConfig struct {
	ModelPath            string
	SampleRate           int
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// SileroClassifier is a stub implementation when built without the 'vad' build tag.
type SileroClassifier struct{}

// NewSileroClassifier returns an error indicating that VAD support is not built in.
func NewSileroClassifier(cfg SileroConfig) (*SileroClassifier, error) {
	return nil, fmt.Errorf("VAD support is not enabled. Rebuild with '-tags vad' and ensure ONNX Runtime is installed")
}

// Classify returns an error for stub implementation.
func (sc *SileroClassifier) Classify(samples []float32) (Verdict, error) {
	return None(), fmt.Errorf("VAD support is not enabled")
}

// ResetState returns an error for stub implementation.
func (sc *SileroClassifier) ResetState() error {
	return fmt.Errorf("VAD support is not enabled")
}

// Close returns an error for stub implementation.
func (sc *SileroClassifier) Close() error {
	return fmt.Errorf("VAD support is not enabled")
}
