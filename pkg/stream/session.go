package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cascade-audio/cascade/pkg/audio"
	"github.com/cascade-audio/cascade/pkg/trace"
	"github.com/cascade-audio/cascade/pkg/vad"
)

const (
	// latencyWindowSize is the number of recent chunk latencies kept for
	// the average-latency health check.
	latencyWindowSize = 100

	// cleanupTimeout bounds classifier teardown in Close.
	cleanupTimeout = 10 * time.Second
)

// ClassifierFactory produces the verdict oracle for a session. It is called
// once, from Initialize, so construction cost (model loading, runtime init)
// is paid at a known point.
type ClassifierFactory func() (vad.Classifier, error)

// Session ties the frame buffer, the verdict oracle and the state machine
// together for one audio stream. One Session serves one connection; nothing
// is shared between instances.
//
// Lifecycle: NewSession -> Initialize -> ProcessChunk... -> Close.
type Session struct {
	id      string
	cfg     Config
	factory ClassifierFactory

	classifier vad.Classifier
	buffer     *audio.FrameAlignedBuffer
	interrupts *InterruptManager
	machine    *StateMachine

	sem *semaphore.Weighted

	frameCounter int64

	// stats
	chunksProcessed   int64
	totalProcessingMs float64
	errorCount        int64
	speechSegments    int64
	singleFrames      int64
	recentLatencies   []float64

	initialized bool
	closed      bool

	mu sync.Mutex
}

// NewSession creates a session with the given configuration. The classifier
// is not acquired until Initialize.
func NewSession(cfg Config, factory ClassifierFactory) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: classifier factory is nil", ErrInvalidConfig)
	}

	slots := cfg.MaxConcurrentChunks
	if slots == 0 {
		slots = DefaultConfig().MaxConcurrentChunks
	}

	s := &Session{
		id:         "sess_" + uuid.New().String()[:12],
		cfg:        cfg,
		factory:    factory,
		buffer:     audio.NewFrameAlignedBuffer(FrameSamples, cfg.MaxBufferSamples),
		interrupts: NewInterruptManager(cfg.Interruption),
		sem:        semaphore.NewWeighted(int64(slots)),
	}
	s.machine = NewStateMachine(s.id, s.interrupts)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Initialize acquires the classifier. Calling it again on a live session
// logs a warning and succeeds without side effects.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session %s is closed", ErrNotInitialized, s.id)
	}
	if s.initialized {
		log.Printf("[Session %s] Initialize called twice, ignoring", s.id)
		return nil
	}

	classifier, err := s.factory()
	if err != nil {
		return fmt.Errorf("initialize session %s: %w", s.id, err)
	}

	s.classifier = classifier
	s.initialized = true

	log.Printf("[Session %s] initialized (frame=%d samples, rate=%d Hz)", s.id, FrameSamples, SampleRate)
	return nil
}

// ProcessChunk feeds one chunk of raw 16-bit little-endian PCM into the
// session and returns the results its frames produced, in stream order.
//
// An empty chunk is a no-op. Chunks with an odd byte count or above
// MaxChunkBytes are rejected before buffering. If the classifier fails
// mid-chunk, results from the frames already processed are returned
// together with an error wrapping ErrProcessing.
func (s *Session) ProcessChunk(ctx context.Context, data []byte) ([]Result, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%audio.BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrOddChunk, len(data))
	}
	if len(data) > MaxChunkBytes {
		return nil, fmt.Errorf("%w: got %d bytes, max %d", ErrChunkTooLarge, len(data), MaxChunkBytes)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire processing slot: %w", err)
	}
	defer s.sem.Release(1)

	_, span := trace.StartSpan(ctx, "stream.ProcessChunk")
	defer span.End()
	span.SetAttributes(trace.ChunkAttrs(s.id, SampleRate, len(data))...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.closed {
		err := fmt.Errorf("%w: session %s", ErrNotInitialized, s.id)
		trace.RecordError(span, err)
		return nil, err
	}

	start := time.Now()

	if err := s.buffer.Write(data); err != nil {
		s.errorCount++
		err = fmt.Errorf("%w: %w", ErrProcessing, err)
		trace.RecordError(span, err)
		return nil, err
	}

	var results []Result
	for s.buffer.HasCompleteFrame() {
		frameData := s.buffer.ReadFrame()
		samples := audio.BytesToFloat32(frameData)

		verdict, err := s.classifier.Classify(samples)
		if err != nil {
			s.errorCount++
			s.finishChunk(start)
			err = fmt.Errorf("%w: classify frame %d: %w", ErrProcessing, s.frameCounter+1, err)
			trace.RecordError(span, err)
			return results, err
		}

		s.frameCounter++
		frame := Frame{
			ID:          s.frameCounter,
			Data:        frameData,
			TimestampMs: float64(s.frameCounter) * FrameDurationMs,
			Verdict:     verdict,
		}

		if res := s.machine.ProcessFrame(frame); res != nil {
			results = append(results, *res)
			switch res.Type {
			case ResultSegment:
				s.speechSegments++
				trace.AddEvent(span, "segment",
					trace.SegmentAttrs(int64(res.Segment.ID), res.Segment.FrameCount(), res.Segment.DurationMs())...)
			case ResultFrame:
				s.singleFrames++
			case ResultInterruption:
				trace.AddEvent(span, "interruption",
					trace.InterruptAttrs(res.Interruption.TimestampMs, res.Interruption.PriorState.String())...)
			}
		}
	}

	s.finishChunk(start)
	return results, nil
}

// finishChunk records per-chunk latency bookkeeping. Must hold s.mu.
func (s *Session) finishChunk(start time.Time) {
	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0

	s.chunksProcessed++
	s.totalProcessingMs += elapsedMs

	s.recentLatencies = append(s.recentLatencies, elapsedMs)
	if len(s.recentLatencies) > latencyWindowSize {
		s.recentLatencies = s.recentLatencies[1:]
	}
}

// GetStats returns a snapshot of the session's counters and derived
// metrics, and logs health warnings when thresholds are crossed.
func (s *Session) GetStats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SessionStats{
		ChunksProcessed:   s.chunksProcessed,
		TotalProcessingMs: s.totalProcessingMs,
		SpeechSegments:    s.speechSegments,
		SingleFrames:      s.singleFrames,
		ErrorCount:        s.errorCount,
	}

	if len(s.recentLatencies) > 0 {
		var sum float64
		for _, ms := range s.recentLatencies {
			sum += ms
		}
		stats.AvgProcessingMs = sum / float64(len(s.recentLatencies))
	}

	if total := s.speechSegments + s.singleFrames; total > 0 {
		stats.SpeechRatio = float64(s.speechSegments) / float64(total)
	}
	if s.chunksProcessed > 0 {
		stats.ErrorRate = float64(s.errorCount) / float64(s.chunksProcessed)
	}
	// Chunks per second of processing time, not of wall-clock time: the
	// metric measures pipeline capacity, not the caller's submission pace.
	if s.totalProcessingMs > 0 {
		stats.ThroughputPerSec = float64(s.chunksProcessed) / (s.totalProcessingMs / 1000.0)
	}

	s.logHealthWarnings(stats)
	return stats
}

// logHealthWarnings flags degraded sessions. Thresholds only apply once
// enough chunks have been seen to make the metrics meaningful.
func (s *Session) logHealthWarnings(stats SessionStats) {
	if stats.ChunksProcessed > 10 {
		if stats.AvgProcessingMs > 100 {
			log.Printf("[Session %s] health: average latency %.1fms exceeds 100ms", s.id, stats.AvgProcessingMs)
		}
		if stats.ErrorRate > 0.05 {
			log.Printf("[Session %s] health: error rate %.1f%% exceeds 5%%", s.id, stats.ErrorRate*100)
		}
	}
	if stats.ChunksProcessed > 100 && stats.ThroughputPerSec < 10 {
		log.Printf("[Session %s] health: throughput %.1f chunks/s below 10", s.id, stats.ThroughputPerSec)
	}
}

// ResetStats clears the counters and the latency window. The stream
// position (frame ids) and the segmentation state are untouched.
func (s *Session) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunksProcessed = 0
	s.totalProcessingMs = 0
	s.errorCount = 0
	s.speechSegments = 0
	s.singleFrames = 0
	s.recentLatencies = nil
}

// GetInterruptStats returns the arbiter's counters.
func (s *Session) GetInterruptStats() InterruptStats {
	return s.interrupts.Stats()
}

// SetSystemState announces the dialogue system's state to the arbiter,
// typically Processing after a segment was handed off and Responding once
// playback starts.
func (s *Session) SetSystemState(state SystemState) {
	s.interrupts.SetState(state)
}

// GetSystemState returns the arbiter's current state.
func (s *Session) GetSystemState() SystemState {
	return s.interrupts.GetState()
}

// Reset discards buffered audio and any open segment, resets the
// classifier's detection state and restarts frame numbering from 1.
// Stats are kept.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
	s.machine.Reset()
	s.interrupts.Reset()
	s.frameCounter = 0

	if s.classifier != nil {
		if err := s.classifier.ResetState(); err != nil {
			return fmt.Errorf("reset session %s: %w", s.id, err)
		}
	}
	return nil
}

// Close releases the classifier and marks the session closed. Teardown runs
// under cleanupTimeout (and ctx); if it does not finish in time the session
// is force-marked closed anyway and an error wrapping ErrCleanup is
// returned. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	return trace.WithSpan(ctx, "stream.Close", s.teardown)
}

func (s *Session) teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(trace.SessionAttrs(s.id)...)

	s.closed = true
	s.buffer.Clear()
	s.machine.Reset()

	if s.classifier == nil {
		return nil
	}
	classifier := s.classifier
	s.classifier = nil

	done := make(chan error, 1)
	go func() {
		done <- classifier.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCleanup, err)
		}
		log.Printf("[Session %s] closed", s.id)
		return nil
	case <-time.After(cleanupTimeout):
		log.Printf("[Session %s] classifier close timed out, force-marking closed", s.id)
		trace.AddEvent(span, "cleanup.timeout", trace.ErrorAttrs("timeout", "classifier close timed out")...)
		return fmt.Errorf("%w: classifier close timed out after %s", ErrCleanup, cleanupTimeout)
	case <-ctx.Done():
		log.Printf("[Session %s] close cancelled, force-marking closed", s.id)
		trace.AddEvent(span, "cleanup.cancelled", trace.ErrorAttrs("cancelled", ctx.Err().Error())...)
		return fmt.Errorf("%w: %w", ErrCleanup, ctx.Err())
	}
}

// String describes the session for logs.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Session(%s, frames=%d, system=%s)", s.id, s.frameCounter, s.interrupts.GetState())
}
