package stream

// SpeechCollector accumulates the frames between a speech-start and the
// matching speech-end verdict into one Segment. The state machine guarantees
// the call order; AddFrame and EndCollection outside an active collection are
// programming errors and panic.
type SpeechCollector struct {
	segmentID  int
	frames     []Frame
	collecting bool
}

// NewSpeechCollector creates a collector for the segment with the given id.
func NewSpeechCollector(segmentID int) *SpeechCollector {
	return &SpeechCollector{segmentID: segmentID}
}

// StartCollection begins a new segment with frame as its first member.
func (c *SpeechCollector) StartCollection(frame Frame) {
	if c.collecting {
		panic("stream: StartCollection called on an active collector")
	}
	c.collecting = true
	c.frames = append(c.frames[:0], frame)
}

// AddFrame appends a frame to the open segment.
func (c *SpeechCollector) AddFrame(frame Frame) {
	if !c.collecting {
		panic("stream: AddFrame called without an active collection")
	}
	c.frames = append(c.frames, frame)
}

// EndCollection appends frame as the last member and finalizes the segment.
// The collector is empty afterwards.
func (c *SpeechCollector) EndCollection(frame Frame) *Segment {
	if !c.collecting {
		panic("stream: EndCollection called without an active collection")
	}
	c.frames = append(c.frames, frame)

	frames := make([]Frame, len(c.frames))
	copy(frames, c.frames)

	segment := &Segment{
		ID:               c.segmentID,
		Frames:           frames,
		StartTimestampMs: frames[0].TimestampMs,
		EndTimestampMs:   frames[len(frames)-1].TimestampMs,
	}

	c.collecting = false
	c.frames = c.frames[:0]
	return segment
}

// Reset discards in-progress frames without producing a segment.
func (c *SpeechCollector) Reset() {
	c.collecting = false
	c.frames = c.frames[:0]
}

// IsCollecting reports whether a collection is active.
func (c *SpeechCollector) IsCollecting() bool {
	return c.collecting
}

// SegmentID returns the id this collector's segment will carry.
func (c *SpeechCollector) SegmentID() int {
	return c.segmentID
}

// FrameCount returns the number of frames collected so far.
func (c *SpeechCollector) FrameCount() int {
	return len(c.frames)
}
