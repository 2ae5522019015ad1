package stream

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-audio/cascade/pkg/vad"
)

const frameBytes = FrameSamples * 2

func newTestSession(t *testing.T, mock *vad.MockClassifier) *Session {
	t.Helper()

	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return mock, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func pcmChunk(frames int) []byte {
	return make([]byte, frames*frameBytes)
}

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VADThreshold = 1.5

	_, err := NewSession(cfg, func() (vad.Classifier, error) {
		return vad.NewMockClassifier(), nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewSession(DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSession_ProcessBeforeInitialize(t *testing.T) {
	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return vad.NewMockClassifier(), nil
	})
	require.NoError(t, err)

	_, err = s.ProcessChunk(context.Background(), pcmChunk(1))
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestSession_InitializeTwice(t *testing.T) {
	mock := vad.NewMockClassifier()
	s := newTestSession(t, mock)

	// Second Initialize is a warning, not an error.
	assert.NoError(t, s.Initialize(context.Background()))
}

func TestSession_ChunkValidation(t *testing.T) {
	s := newTestSession(t, vad.NewMockClassifier())
	ctx := context.Background()

	results, err := s.ProcessChunk(ctx, nil)
	assert.NoError(t, err, "empty chunk is a no-op")
	assert.Empty(t, results)

	_, err = s.ProcessChunk(ctx, make([]byte, 3))
	assert.True(t, errors.Is(err, ErrOddChunk))

	_, err = s.ProcessChunk(ctx, make([]byte, MaxChunkBytes+2))
	assert.True(t, errors.Is(err, ErrChunkTooLarge))

	// Rejected chunks do not count as processed.
	assert.EqualValues(t, 0, s.GetStats().ChunksProcessed)
}

func TestSession_SilenceProducesFrameResults(t *testing.T) {
	s := newTestSession(t, vad.NewMockClassifier())

	results, err := s.ProcessChunk(context.Background(), pcmChunk(3))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, ResultFrame, res.Type)
		assert.EqualValues(t, i+1, res.Frame.ID)
		assert.Equal(t, float64(i+1)*FrameDurationMs, res.Frame.TimestampMs)
	}

	stats := s.GetStats()
	assert.EqualValues(t, 1, stats.ChunksProcessed)
	assert.EqualValues(t, 3, stats.SingleFrames)
}

func TestSession_SegmentRoundTrip(t *testing.T) {
	mock := vad.NewMockClassifier(
		vad.Start(0),
		vad.None(),
		vad.None(),
		vad.End(3*FrameDurationMs),
	)
	s := newTestSession(t, mock)

	results, err := s.ProcessChunk(context.Background(), pcmChunk(4))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.Equal(t, ResultSegment, res.Type)
	assert.Equal(t, 1, res.Segment.ID)
	assert.Equal(t, 4, res.Segment.FrameCount())
	assert.Equal(t, FrameDurationMs, res.Segment.StartTimestampMs)
	assert.Equal(t, 4*FrameDurationMs, res.Segment.EndTimestampMs)
	assert.Len(t, res.Segment.PCM(), 4*frameBytes)

	stats := s.GetStats()
	assert.EqualValues(t, 1, stats.SpeechSegments)
	assert.EqualValues(t, 0, stats.SingleFrames)
	assert.Equal(t, 1.0, stats.SpeechRatio)
}

func TestSession_FrameIDsSpanChunks(t *testing.T) {
	s := newTestSession(t, vad.NewMockClassifier())
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		results, err := s.ProcessChunk(ctx, pcmChunk(2))
		require.NoError(t, err)
		for _, res := range results {
			ids = append(ids, res.Frame.ID)
		}
	}

	require.Len(t, ids, 6)
	for i, id := range ids {
		assert.EqualValues(t, i+1, id, "frame ids must be contiguous across chunks")
	}
}

func TestSession_PartialFrameCarriesOver(t *testing.T) {
	s := newTestSession(t, vad.NewMockClassifier())
	ctx := context.Background()

	// 1.5 frames: one classified, half a frame stays buffered.
	results, err := s.ProcessChunk(ctx, make([]byte, frameBytes+frameBytes/2))
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// The next half frame completes it.
	results, err = s.ProcessChunk(ctx, make([]byte, frameBytes/2))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 2, results[0].Frame.ID)
}

func TestSession_BargeInDuringResponding(t *testing.T) {
	mock := vad.NewMockClassifier(
		vad.Start(0),
		vad.None(),
		vad.End(2*FrameDurationMs),
	)
	s := newTestSession(t, mock)

	s.SetSystemState(SystemStateResponding)

	results, err := s.ProcessChunk(context.Background(), pcmChunk(3))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, ResultInterruption, results[0].Type)
	assert.Equal(t, SystemStateResponding, results[0].Interruption.PriorState)
	assert.Equal(t, ResultSegment, results[1].Type)

	assert.Equal(t, SystemStateIdle, s.GetSystemState())
	assert.EqualValues(t, 1, s.GetInterruptStats().Interruptions)
}

// flakyClassifier returns None until failAt calls have been made, then fails.
type flakyClassifier struct {
	calls  int
	failAt int
}

func (f *flakyClassifier) Classify(samples []float32) (vad.Verdict, error) {
	f.calls++
	if f.calls > f.failAt {
		return vad.None(), errors.New("model inference failed")
	}
	return vad.None(), nil
}

func (f *flakyClassifier) ResetState() error { return nil }
func (f *flakyClassifier) Close() error     { return nil }

func TestSession_ClassifierFailureMidChunk(t *testing.T) {
	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return &flakyClassifier{failAt: 2}, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	results, err := s.ProcessChunk(context.Background(), pcmChunk(4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessing))
	assert.Len(t, results, 2, "frames processed before the failure are returned")

	stats := s.GetStats()
	assert.EqualValues(t, 1, stats.ErrorCount)
	assert.EqualValues(t, 1, stats.ChunksProcessed)
	assert.Equal(t, 1.0, stats.ErrorRate)
}

func TestSession_BufferOverflowRejectsChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBufferSamples = FrameSamples // room for exactly one frame

	s, err := NewSession(cfg, func() (vad.Classifier, error) {
		return vad.NewMockClassifier(), nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	// Two frames at once cannot fit a one-frame buffer.
	_, err = s.ProcessChunk(context.Background(), pcmChunk(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessing))

	// One frame still goes through.
	results, err := s.ProcessChunk(context.Background(), pcmChunk(1))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

// slowClassifier spends measurable time on every frame.
type slowClassifier struct{}

func (slowClassifier) Classify(samples []float32) (vad.Verdict, error) {
	time.Sleep(2 * time.Millisecond)
	return vad.None(), nil
}

func (slowClassifier) ResetState() error { return nil }
func (slowClassifier) Close() error      { return nil }

func TestSession_ThroughputMeasuresProcessingTime(t *testing.T) {
	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return slowClassifier{}, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := s.ProcessChunk(context.Background(), pcmChunk(1))
		require.NoError(t, err)
	}

	stats := s.GetStats()
	require.Greater(t, stats.TotalProcessingMs, 0.0)
	want := float64(stats.ChunksProcessed) / (stats.TotalProcessingMs / 1000.0)
	assert.InDelta(t, want, stats.ThroughputPerSec, want*0.01)

	// A wall-clock pause with no work must not move the metric: it reflects
	// pipeline capacity, not the caller's submission pace. Five 2ms frames
	// stay far above the 10 chunks/s health threshold however slowly the
	// caller drips them in.
	time.Sleep(50 * time.Millisecond)
	after := s.GetStats()
	assert.Equal(t, stats.ThroughputPerSec, after.ThroughputPerSec)
	assert.Greater(t, after.ThroughputPerSec, 10.0)
}

func TestSession_ResetStats(t *testing.T) {
	s := newTestSession(t, vad.NewMockClassifier())

	_, err := s.ProcessChunk(context.Background(), pcmChunk(2))
	require.NoError(t, err)
	require.EqualValues(t, 1, s.GetStats().ChunksProcessed)

	s.ResetStats()
	stats := s.GetStats()
	assert.EqualValues(t, 0, stats.ChunksProcessed)
	assert.EqualValues(t, 0, stats.SingleFrames)
	assert.Zero(t, stats.AvgProcessingMs)

	// The stream position is not a stat: frame ids keep counting.
	results, err := s.ProcessChunk(context.Background(), pcmChunk(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 3, results[0].Frame.ID)
}

func TestSession_Reset(t *testing.T) {
	mock := vad.NewMockClassifier(vad.Start(0), vad.End(2*FrameDurationMs))
	s := newTestSession(t, mock)

	// Leave a segment open, then discard it.
	_, err := s.ProcessChunk(context.Background(), pcmChunk(1))
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	assert.True(t, mock.ResetCalled)
	assert.Equal(t, SystemStateIdle, s.GetSystemState())

	// The mock replays its script after the reset: the same verdicts now
	// produce the same segment, with frame numbering restarted at 1.
	results, err := s.ProcessChunk(context.Background(), pcmChunk(2))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ResultSegment, results[0].Type)
	assert.Equal(t, 1, results[0].Segment.ID)
	assert.EqualValues(t, 1, results[0].Segment.Frames[0].ID)
}

func TestSession_Close(t *testing.T) {
	mock := vad.NewMockClassifier()
	s := newTestSession(t, mock)
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))
	assert.True(t, mock.CloseCalled)

	// Idempotent.
	assert.NoError(t, s.Close(ctx))

	_, err := s.ProcessChunk(ctx, pcmChunk(1))
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestSession_ProcessReader(t *testing.T) {
	mock := vad.NewMockClassifier(
		vad.Start(0),
		vad.None(),
		vad.End(2*FrameDurationMs),
	)
	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return mock, nil
	})
	require.NoError(t, err)

	// ProcessReader initializes on demand; 3 frames plus a trailing partial.
	r := bytes.NewReader(make([]byte, 3*frameBytes+10))
	results, err := s.ProcessReader(context.Background(), r, frameBytes)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultSegment, results[0].Type)
	assert.Equal(t, 3, results[0].Segment.FrameCount())
}

func TestSession_ProcessStream(t *testing.T) {
	s, err := NewSession(DefaultConfig(), func() (vad.Classifier, error) {
		return vad.NewMockClassifier(), nil
	})
	require.NoError(t, err)

	in := make(chan []byte)
	out, errc := s.ProcessStream(context.Background(), in)

	go func() {
		in <- pcmChunk(2)
		in <- pcmChunk(1)
		close(in)
	}()

	var results []Result
	for res := range out {
		results = append(results, res)
	}
	require.NoError(t, <-errc)
	assert.Len(t, results, 3)
}
