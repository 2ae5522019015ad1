package stream

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables for one session.
type Config struct {
	// VADThreshold is the speech probability threshold in [0, 1].
	VADThreshold float32 `yaml:"vad_threshold"`

	// MinSilenceDurationMs is how long the oracle waits in silence before
	// emitting a speech-end verdict.
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms"`

	// SpeechPadMs widens reported speech boundaries.
	SpeechPadMs int `yaml:"speech_pad_ms"`

	// MaxBufferSamples bounds buffered-but-unframed audio. Zero selects the
	// frame buffer default (128000 samples, about 8 seconds at 16kHz).
	MaxBufferSamples int `yaml:"max_buffer_samples"`

	// MaxConcurrentChunks is the number of admission slots for in-flight
	// chunk processing. Zero selects the default of 50.
	MaxConcurrentChunks int `yaml:"max_concurrent_chunks"`

	// Interruption configures barge-in detection.
	Interruption InterruptConfig `yaml:"interruption"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		VADThreshold:         0.5,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
		MaxBufferSamples:     128000,
		MaxConcurrentChunks:  50,
		Interruption:         DefaultInterruptConfig(),
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all failures found.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad_threshold %v must be between 0 and 1", cfg.VADThreshold))
	}
	if cfg.MinSilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("min_silence_duration_ms %d must not be negative", cfg.MinSilenceDurationMs))
	}
	if cfg.SpeechPadMs < 0 {
		errs = append(errs, fmt.Errorf("speech_pad_ms %d must not be negative", cfg.SpeechPadMs))
	}
	if cfg.MaxConcurrentChunks < 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_chunks %d must not be negative", cfg.MaxConcurrentChunks))
	}
	if cfg.Interruption.MinIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("interruption.min_interval_ms %d must not be negative", cfg.Interruption.MinIntervalMs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads the YAML configuration file at path and returns a
// validated Config. Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadConfigFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromReader decodes a YAML config from r on top of the defaults
// and validates the result. Unknown fields are rejected.
func LoadConfigFromReader(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
