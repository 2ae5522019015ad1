package stream

import (
	"log"
	"sync"
)

// SystemState is the session-wide conversational state. The surrounding
// dialogue system announces Processing/Responding via SetState; the arbiter
// moves the state to Collecting/Idle as user speech is detected.
type SystemState int

const (
	// SystemStateIdle means nobody is speaking and nothing is in flight.
	SystemStateIdle SystemState = iota
	// SystemStateCollecting means user speech is being collected.
	SystemStateCollecting
	// SystemStateProcessing means the dialogue system is thinking.
	SystemStateProcessing
	// SystemStateResponding means the dialogue system is speaking.
	SystemStateResponding
)

// String returns the state's string representation.
func (s SystemState) String() string {
	switch s {
	case SystemStateIdle:
		return "Idle"
	case SystemStateCollecting:
		return "Collecting"
	case SystemStateProcessing:
		return "Processing"
	case SystemStateResponding:
		return "Responding"
	default:
		return "Unknown"
	}
}

// InterruptConfig configures barge-in detection.
type InterruptConfig struct {
	// EnableInterruption turns barge-in detection on. When false, speech
	// starting during Processing/Responding is refused entirely: the arbiter
	// keeps the floor and the state machine drops the verdict.
	EnableInterruption bool `yaml:"enable_interruption"`

	// MinIntervalMs is the debounce window: a second interruption within
	// this many stream-milliseconds of the last accepted one is not
	// reported (collection still begins).
	MinIntervalMs int `yaml:"min_interval_ms"`
}

// DefaultInterruptConfig returns the default barge-in configuration.
func DefaultInterruptConfig() InterruptConfig {
	return InterruptConfig{
		EnableInterruption: true,
		MinIntervalMs:      500,
	}
}

// InterruptStats counts arbiter decisions.
type InterruptStats struct {
	Interruptions    int64 `json:"interruptions"`
	Debounced        int64 `json:"debounced"`
	Refused          int64 `json:"refused"`
	StateTransitions int64 `json:"state_transitions"`
}

// InterruptManager owns the session's SystemState and decides, on each
// speech-start, whether it is a normal utterance or a barge-in interrupting
// an in-progress system response. The state machine treats its decisions as
// binding.
type InterruptManager struct {
	config InterruptConfig

	state           SystemState
	lastInterruptMs float64
	hasInterrupted  bool

	stats InterruptStats

	mu sync.Mutex
}

// NewInterruptManager creates an arbiter in the Idle state.
func NewInterruptManager(config InterruptConfig) *InterruptManager {
	return &InterruptManager{
		config: config,
		state:  SystemStateIdle,
	}
}

// OnSpeechStart handles a speech-start at the given stream position.
// If the system was Processing or Responding, the start is a barge-in: the
// returned event carries the prior state. A barge-in inside the debounce
// window still opens collection but returns nil. With interruption disabled,
// speech during Processing/Responding is refused and the state is unchanged;
// the caller must check GetState and drop the verdict.
func (im *InterruptManager) OnSpeechStart(timestampMs float64) *InterruptionEvent {
	im.mu.Lock()
	defer im.mu.Unlock()

	prior := im.state

	if prior == SystemStateProcessing || prior == SystemStateResponding {
		if !im.config.EnableInterruption {
			im.stats.Refused++
			log.Printf("[InterruptManager] speech start during %s refused: interruption disabled", prior)
			return nil
		}

		if im.hasInterrupted && timestampMs-im.lastInterruptMs < float64(im.config.MinIntervalMs) {
			im.stats.Debounced++
			im.setStateLocked(SystemStateCollecting)
			log.Printf("[InterruptManager] barge-in at %.0fms debounced (last at %.0fms, window %dms)",
				timestampMs, im.lastInterruptMs, im.config.MinIntervalMs)
			return nil
		}

		im.lastInterruptMs = timestampMs
		im.hasInterrupted = true
		im.stats.Interruptions++
		im.setStateLocked(SystemStateCollecting)
		log.Printf("[InterruptManager] barge-in at %.0fms, prior state %s", timestampMs, prior)
		return &InterruptionEvent{TimestampMs: timestampMs, PriorState: prior}
	}

	// Idle or already Collecting: plain utterance start.
	im.setStateLocked(SystemStateCollecting)
	return nil
}

// OnSpeechEnd handles a speech-end at the given stream position. Collection
// returns the state to Idle; the dialogue system is responsible for moving
// it onward to Processing/Responding.
func (im *InterruptManager) OnSpeechEnd(timestampMs float64) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.state == SystemStateCollecting {
		im.setStateLocked(SystemStateIdle)
	}
}

// SetState is the external override used by the dialogue system to announce
// it has begun thinking or responding.
func (im *InterruptManager) SetState(state SystemState) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.setStateLocked(state)
}

// GetState returns the current system state.
func (im *InterruptManager) GetState() SystemState {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.state
}

// Stats returns a snapshot of the arbiter's counters.
func (im *InterruptManager) Stats() InterruptStats {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.stats
}

// Reset returns the arbiter to Idle and clears the debounce baseline.
// Counters are preserved.
func (im *InterruptManager) Reset() {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.setStateLocked(SystemStateIdle)
	im.lastInterruptMs = 0
	im.hasInterrupted = false
}

// setStateLocked transitions the state and counts it. Must hold im.mu.
func (im *InterruptManager) setStateLocked(state SystemState) {
	if im.state == state {
		return
	}
	im.state = state
	im.stats.StateTransitions++
}
