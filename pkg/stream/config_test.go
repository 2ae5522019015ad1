package stream

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.VADThreshold != 0.5 {
		t.Errorf("VADThreshold = %v, want 0.5", cfg.VADThreshold)
	}
	if !cfg.Interruption.EnableInterruption {
		t.Error("interruption should be enabled by default")
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VADThreshold = -0.1
	cfg.MinSilenceDurationMs = -5
	cfg.Interruption.MinIntervalMs = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error %v should wrap ErrInvalidConfig", err)
	}
	for _, want := range []string{"vad_threshold", "min_silence_duration_ms", "min_interval_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadConfigFromReader(t *testing.T) {
	yaml := `
vad_threshold: 0.6
min_silence_duration_ms: 200
interruption:
  enable_interruption: false
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadConfigFromReader: %v", err)
	}

	if cfg.VADThreshold != 0.6 {
		t.Errorf("VADThreshold = %v, want 0.6", cfg.VADThreshold)
	}
	if cfg.MinSilenceDurationMs != 200 {
		t.Errorf("MinSilenceDurationMs = %d, want 200", cfg.MinSilenceDurationMs)
	}
	if cfg.Interruption.EnableInterruption {
		t.Error("interruption should be disabled")
	}
	// Unset fields keep their defaults.
	if cfg.SpeechPadMs != DefaultConfig().SpeechPadMs {
		t.Errorf("SpeechPadMs = %d, want default %d", cfg.SpeechPadMs, DefaultConfig().SpeechPadMs)
	}
}

func TestLoadConfigFromReader_UnknownField(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("vad_treshold: 0.6\n"))
	if err == nil {
		t.Fatal("misspelled field should be rejected")
	}
}

func TestLoadConfigFromReader_Empty(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("empty config should equal defaults: %+v", cfg)
	}
}

func TestLoadConfigFromReader_InvalidValues(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("vad_threshold: 2.0\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error %v should wrap ErrInvalidConfig", err)
	}
}
