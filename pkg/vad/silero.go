//go:build vad

package vad

import (
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"
)

// SileroConfig holds configuration for the silero-vad-go backed classifier.
type SileroConfig struct {
	ModelPath            string
	SampleRate           int
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// SileroClassifier is a Classifier backed by silero-vad-go's speech detector.
// Unlike Iterator, the hysteresis lives inside the library; this type only
// maps detected segment boundaries onto Start/End verdicts.
type SileroClassifier struct {
	detector *speech.Detector
	cfg      SileroConfig

	speaking   bool
	currSample int

	mu sync.Mutex
}

// NewSileroClassifier creates a classifier using the Silero model at
// cfg.ModelPath. Requires CGO and an installed ONNX Runtime.
func NewSileroClassifier(cfg SileroConfig) (*SileroClassifier, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MinSilenceDurationMs == 0 {
		cfg.MinSilenceDurationMs = 100
	}
	if cfg.SpeechPadMs == 0 {
		cfg.SpeechPadMs = 30
	}

	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: cfg.MinSilenceDurationMs,
		SpeechPadMs:          cfg.SpeechPadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VAD detector: %w", err)
	}

	return &SileroClassifier{detector: detector, cfg: cfg}, nil
}

// Classify implements Classifier.
func (sc *SileroClassifier) Classify(samples []float32) (Verdict, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	segments, err := sc.detector.Detect(samples)
	if err != nil {
		return None(), fmt.Errorf("detect failed: %w", err)
	}

	sc.currSample += len(samples)
	posMs := float64(sc.currSample) * 1000 / float64(sc.cfg.SampleRate)

	for _, segment := range segments {
		if segment.SpeechStartAt > 0 && !sc.speaking {
			sc.speaking = true
			return Start(posMs), nil
		}
		if segment.SpeechEndAt > 0 && sc.speaking {
			sc.speaking = false
			return End(posMs), nil
		}
	}

	return None(), nil
}

// ResetState implements Classifier.
func (sc *SileroClassifier) ResetState() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.speaking = false
	sc.currSample = 0
	if err := sc.detector.Reset(); err != nil {
		return fmt.Errorf("detector reset failed: %w", err)
	}
	return nil
}

// Close implements Classifier.
func (sc *SileroClassifier) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.detector != nil {
		if err := sc.detector.Destroy(); err != nil {
			return fmt.Errorf("detector destroy failed: %w", err)
		}
		sc.detector = nil
	}
	return nil
}

// Ensure SileroClassifier implements Classifier at compile time.
var _ Classifier = (*SileroClassifier)(nil)
