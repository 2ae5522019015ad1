package vad

import (
	"fmt"
	"sync"
)

// hysteresisGap is subtracted from the threshold for the release side of the
// trigger, so the iterator does not flap around a single probability level.
const hysteresisGap = 0.15

// IteratorConfig holds configuration for creating a verdict Iterator.
type IteratorConfig struct {
	// Threshold is the speech probability above which a frame counts as
	// speech. Must be in [0, 1].
	Threshold float32
	// SampleRate of the input audio in Hz. Supported values are 8000 and 16000.
	SampleRate int
	// MinSilenceDurationMs is how long probabilities must stay low before an
	// End verdict is emitted.
	MinSilenceDurationMs int
	// SpeechPadMs widens reported speech boundaries on both sides.
	SpeechPadMs int
}

// IsValid validates the iterator configuration.
func (c IteratorConfig) IsValid() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("invalid Threshold %v: must be between 0 and 1", c.Threshold)
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: valid values are 8000 and 16000")
	}
	return nil
}

// Iterator converts per-frame speech probabilities from a detector into
// Start/End verdicts with silence debouncing and boundary padding. It is the
// stateful per-frame oracle fed by a session: one frame in, one verdict out.
type Iterator struct {
	detector DetectorInterface
	cfg      IteratorConfig

	triggered  bool
	currSample int
	tempEnd    int // sample position where the current silence run began, 0 if none

	minSilenceSamples int
	speechPadSamples  int

	mu sync.Mutex
}

// NewIterator creates a verdict iterator over the given detector.
func NewIterator(detector DetectorInterface, cfg IteratorConfig) (*Iterator, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if detector == nil {
		return nil, fmt.Errorf("nil detector")
	}

	return &Iterator{
		detector:          detector,
		cfg:               cfg,
		minSilenceSamples: cfg.SampleRate * cfg.MinSilenceDurationMs / 1000,
		speechPadSamples:  cfg.SampleRate * cfg.SpeechPadMs / 1000,
	}, nil
}

// Classify implements Classifier. It runs detector inference on the frame
// and applies trigger hysteresis to decide whether a speech boundary was
// crossed.
func (it *Iterator) Classify(samples []float32) (Verdict, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	prob, err := it.detector.Infer(samples)
	if err != nil {
		return None(), fmt.Errorf("infer failed: %w", err)
	}

	windowSize := len(samples)
	it.currSample += windowSize

	if prob >= it.cfg.Threshold && it.tempEnd != 0 {
		// Speech resumed before the silence run matured
		it.tempEnd = 0
	}

	if prob >= it.cfg.Threshold && !it.triggered {
		it.triggered = true
		start := it.currSample - windowSize - it.speechPadSamples
		if start < 0 {
			start = 0
		}
		return Start(it.samplesToMs(start)), nil
	}

	if prob < it.cfg.Threshold-hysteresisGap && it.triggered {
		if it.tempEnd == 0 {
			it.tempEnd = it.currSample
		}
		if it.currSample-it.tempEnd < it.minSilenceSamples {
			return None(), nil
		}
		end := it.tempEnd + it.speechPadSamples
		it.tempEnd = 0
		it.triggered = false
		return End(it.samplesToMs(end)), nil
	}

	return None(), nil
}

// ResetState implements Classifier. It clears the trigger state and resets
// the underlying detector.
func (it *Iterator) ResetState() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.triggered = false
	it.currSample = 0
	it.tempEnd = 0

	if err := it.detector.Reset(); err != nil {
		return fmt.Errorf("detector reset failed: %w", err)
	}
	return nil
}

// Close implements Classifier. It destroys the underlying detector.
func (it *Iterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.detector.Destroy()
}

// IsTriggered reports whether the iterator currently considers speech active.
func (it *Iterator) IsTriggered() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.triggered
}

func (it *Iterator) samplesToMs(samples int) float64 {
	return float64(samples) * 1000 / float64(it.cfg.SampleRate)
}

// Ensure Iterator implements Classifier at compile time.
var _ Classifier = (*Iterator)(nil)
