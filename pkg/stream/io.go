package stream

import (
	"context"
	"fmt"
	"io"
)

// defaultReadChunkBytes is the chunk size ProcessReader uses when the
// caller passes zero. Four frames per read keeps latency low without
// degenerating into per-frame reads.
const defaultReadChunkBytes = 4 * FrameSamples * 2

// ProcessStream consumes PCM chunks from in until it is closed or ctx is
// cancelled, and delivers results on the returned channel. The error
// channel receives at most one error and both channels are closed when the
// stream ends. The session is initialized if it was not already.
func (s *Session) ProcessStream(ctx context.Context, in <-chan []byte) (<-chan Result, <-chan error) {
	out := make(chan Result, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		if err := s.Initialize(ctx); err != nil {
			errc <- err
			return
		}

		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				results, err := s.ProcessChunk(ctx, chunk)
				for _, res := range results {
					select {
					case out <- res:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
				if err != nil {
					errc <- err
					return
				}
			}
		}
	}()

	return out, errc
}

// ProcessReader reads PCM from r in chunkBytes-sized chunks (0 selects a
// default of four frames) and returns every result the stream produced.
// Trailing bytes short of a frame stay buffered and produce no result.
// The session is initialized if it was not already.
func (s *Session) ProcessReader(ctx context.Context, r io.Reader, chunkBytes int) ([]Result, error) {
	if chunkBytes == 0 {
		chunkBytes = defaultReadChunkBytes
	}
	if chunkBytes < 0 || chunkBytes%2 != 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrOddChunk, chunkBytes)
	}

	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var all []Result
	buf := make([]byte, chunkBytes)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			results, perr := s.ProcessChunk(ctx, buf[:n])
			all = append(all, results...)
			if perr != nil {
				return all, perr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return all, nil
		}
		if err != nil {
			return all, fmt.Errorf("read audio: %w", err)
		}
	}
}
