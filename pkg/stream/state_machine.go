package stream

import (
	"fmt"
	"log"

	"github.com/cascade-audio/cascade/pkg/vad"
)

// SessionState is the state machine's local collection state.
type SessionState int

const (
	// SessionStateIdle means no segment is open.
	SessionStateIdle SessionState = iota
	// SessionStateCollecting means a segment is open and absorbing frames.
	SessionStateCollecting
)

// String returns the state's string representation.
func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// StateMachine converts the stream of classified frames into results. It
// binds the collector to the interrupt arbiter: every speech-start is gated
// through the arbiter before a segment opens, so local and system-wide state
// can never disagree about whether collection is active.
type StateMachine struct {
	id             string
	state          SessionState
	collector      *SpeechCollector
	interrupts     *InterruptManager
	segmentCounter int
}

// NewStateMachine creates a state machine in the idle state. interrupts may
// be nil, in which case speech starts are never treated as barge-ins.
func NewStateMachine(id string, interrupts *InterruptManager) *StateMachine {
	return &StateMachine{
		id:         id,
		state:      SessionStateIdle,
		interrupts: interrupts,
	}
}

// ProcessFrame runs one frame through the transition table. It returns at
// most one result: a frame result, a segment result or an interruption
// result, or nil when the frame was absorbed or ignored.
func (sm *StateMachine) ProcessFrame(frame Frame) *Result {
	switch frame.Verdict.Kind {
	case vad.VerdictNone:
		return sm.handleNoSpeech(frame)
	case vad.VerdictStart:
		return sm.handleSpeechStart(frame)
	case vad.VerdictEnd:
		return sm.handleSpeechEnd(frame)
	default:
		log.Printf("[StateMachine %s] unknown verdict kind %d, treating as no activity", sm.id, frame.Verdict.Kind)
		return sm.handleNoSpeech(frame)
	}
}

// handleNoSpeech absorbs the frame into an open segment, or reports it as a
// standalone frame result when idle.
func (sm *StateMachine) handleNoSpeech(frame Frame) *Result {
	if sm.state == SessionStateCollecting && sm.collector != nil {
		sm.collector.AddFrame(frame)
		return nil
	}

	f := frame
	return &Result{Type: ResultFrame, Frame: &f}
}

// handleSpeechStart opens a new segment, unless the start is a duplicate or
// the arbiter refuses entry.
func (sm *StateMachine) handleSpeechStart(frame Frame) *Result {
	if sm.state == SessionStateCollecting {
		// Duplicate start inside an open segment. Checked before the arbiter
		// call so the arbiter never records a transition for a start that
		// cannot open a segment.
		log.Printf("[StateMachine %s] already collecting, ignoring duplicate start", sm.id)
		return nil
	}

	var interruption *InterruptionEvent
	if sm.interrupts != nil {
		interruption = sm.interrupts.OnSpeechStart(frame.TimestampMs)

		// Gatekeeper: the arbiter's decision is binding. If it did not move
		// to Collecting it refused entry, and committing locally would split
		// the two states.
		if sm.interrupts.GetState() != SystemStateCollecting {
			log.Printf("[StateMachine %s] start refused by arbiter (state %s), ignoring",
				sm.id, sm.interrupts.GetState())
			return nil
		}
	}

	sm.segmentCounter++
	sm.collector = NewSpeechCollector(sm.segmentCounter)
	sm.collector.StartCollection(frame)
	sm.state = SessionStateCollecting

	log.Printf("[StateMachine %s] collecting segment %d from frame %d", sm.id, sm.segmentCounter, frame.ID)

	if interruption != nil {
		return &Result{Type: ResultInterruption, Interruption: interruption}
	}
	return nil
}

// handleSpeechEnd finalizes the open segment. The arbiter is notified
// unconditionally so SystemState returns to Idle even if no segment is open
// locally.
func (sm *StateMachine) handleSpeechEnd(frame Frame) *Result {
	if sm.interrupts != nil {
		sm.interrupts.OnSpeechEnd(frame.TimestampMs)
	}

	if sm.state != SessionStateCollecting || sm.collector == nil {
		log.Printf("[StateMachine %s] not collecting, ignoring end", sm.id)
		return nil
	}

	segment := sm.collector.EndCollection(frame)
	sm.state = SessionStateIdle
	sm.collector = nil

	log.Printf("[StateMachine %s] finalized segment %d (%d frames, %.0fms)",
		sm.id, segment.ID, segment.FrameCount(), segment.DurationMs())

	return &Result{Type: ResultSegment, Segment: segment}
}

// Reset discards any open collection and returns to idle with the segment
// counter cleared.
func (sm *StateMachine) Reset() {
	if sm.collector != nil {
		sm.collector.Reset()
	}
	sm.state = SessionStateIdle
	sm.collector = nil
	sm.segmentCounter = 0
}

// State returns the current local state.
func (sm *StateMachine) State() SessionState {
	return sm.state
}

// IsCollecting reports whether a segment is open.
func (sm *StateMachine) IsCollecting() bool {
	return sm.state == SessionStateCollecting
}

// CurrentSegmentID returns the open segment's id, or 0 if none.
func (sm *StateMachine) CurrentSegmentID() int {
	if sm.collector != nil {
		return sm.collector.SegmentID()
	}
	return 0
}

// CurrentFrameCount returns the number of frames collected so far.
func (sm *StateMachine) CurrentFrameCount() int {
	if sm.collector != nil {
		return sm.collector.FrameCount()
	}
	return 0
}

// String renders the machine's state for logs.
func (sm *StateMachine) String() string {
	if sm.IsCollecting() {
		return fmt.Sprintf("StateMachine(%s, collecting segment %d)", sm.id, sm.CurrentSegmentID())
	}
	return fmt.Sprintf("StateMachine(%s, idle)", sm.id)
}
