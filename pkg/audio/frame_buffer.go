// Package audio provides audio processing utilities.
//
// FrameAlignedBuffer accumulates arbitrary-sized PCM byte chunks and yields
// only complete, fixed-size sample frames. Any trailing bytes that do not
// fill a whole frame are retained for the next write.
//
// Main features:
//   - Fixed frame size in samples, set at construction
//   - Bounded total buffering with an explicit overflow error
//   - Thread-safe write/read operations
//
// Usage:
//
//	fb := NewFrameAlignedBuffer(512, 128000) // 512-sample frames, ~8s bound
//	if err := fb.Write(chunk); err != nil { ... }
//	for fb.HasCompleteFrame() {
//	    frame := fb.ReadFrame()
//	    ...
//	}
package audio

import (
	"fmt"
	"sync"
)

// BytesPerSample is the width of one PCM sample (16-bit little-endian).
const BytesPerSample = 2

// ErrBufferFull is returned by Write when accepting the data would exceed
// the buffer's configured capacity. No part of the chunk is buffered.
var ErrBufferFull = fmt.Errorf("frame buffer full")

// FrameAlignedBuffer buffers raw PCM bytes and dispenses fixed-size frames.
type FrameAlignedBuffer struct {
	data       []byte
	frameBytes int // complete frame size in bytes
	maxBytes   int // upper bound on buffered-but-unframed bytes
	mu         sync.Mutex
}

// NewFrameAlignedBuffer creates a buffer that emits frames of frameSamples
// 16-bit samples. maxSamples bounds how much unframed audio may accumulate;
// a value <= 0 selects the default of 128000 samples (8 seconds at 16kHz).
func NewFrameAlignedBuffer(frameSamples, maxSamples int) *FrameAlignedBuffer {
	if maxSamples <= 0 {
		maxSamples = 128000
	}
	return &FrameAlignedBuffer{
		data:       make([]byte, 0, frameSamples*BytesPerSample),
		frameBytes: frameSamples * BytesPerSample,
		maxBytes:   maxSamples * BytesPerSample,
	}
}

// Write appends data to the buffer.
// Returns ErrBufferFull if the buffered total would exceed the capacity;
// the caller sees the fault instead of silently losing audio.
func (fb *FrameAlignedBuffer) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.data)+len(data) > fb.maxBytes {
		return fmt.Errorf("%w: %d buffered + %d incoming > %d max",
			ErrBufferFull, len(fb.data), len(data), fb.maxBytes)
	}

	fb.data = append(fb.data, data...)
	return nil
}

// HasCompleteFrame reports whether at least one full frame is buffered.
func (fb *FrameAlignedBuffer) HasCompleteFrame() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.data) >= fb.frameBytes
}

// ReadFrame removes and returns exactly one frame from the front of the
// buffer, or nil if no complete frame is available. The remainder stays
// buffered for future frames.
func (fb *FrameAlignedBuffer) ReadFrame() []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.data) < fb.frameBytes {
		return nil
	}

	frame := make([]byte, fb.frameBytes)
	copy(frame, fb.data[:fb.frameBytes])
	fb.data = fb.data[:copy(fb.data, fb.data[fb.frameBytes:])]
	return frame
}

// Clear discards all buffered bytes, including any partial frame.
func (fb *FrameAlignedBuffer) Clear() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.data = fb.data[:0]
}

// Size returns the number of buffered bytes.
func (fb *FrameAlignedBuffer) Size() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.data)
}

// FrameBytes returns the size of one complete frame in bytes.
func (fb *FrameAlignedBuffer) FrameBytes() int {
	return fb.frameBytes
}

// Capacity returns the maximum number of bytes the buffer will hold.
func (fb *FrameAlignedBuffer) Capacity() int {
	return fb.maxBytes
}
