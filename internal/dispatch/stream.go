package dispatch

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/shopdesk/shopdesk-backend/internal/providers"
)

// Stream is a lazy, cancellable sequence of response chunks. Consumers pull
// deltas with Recv and must Close when done; Close releases the underlying
// connection on every exit path. Chunks delivered before a mid-stream
// failure are kept: the stream ends with StatusPartial and the error
// attached rather than discarding prior output.
type Stream struct {
	chunks <-chan providers.StreamChunk
	cancel context.CancelFunc

	mu        sync.Mutex
	buf       strings.Builder
	status    Status
	err       error
	done      bool
	closed    bool
	delivered bool
	pendEOF   bool
}

func newStream(chunks <-chan providers.StreamChunk, cancel context.CancelFunc) *Stream {
	return &Stream{chunks: chunks, cancel: cancel}
}

// Recv returns the next text delta. It returns io.EOF after the final
// chunk, or the terminal error on a mid-stream failure.
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.done {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		if s.pendEOF {
			s.finishLocked(StatusComplete, nil)
			return "", io.EOF
		}

		chunk, ok := <-s.chunks
		if !ok {
			// Producer stopped without a terminal chunk: the context was
			// cancelled underneath it.
			s.finishLocked(s.terminalStatus(), context.Canceled)
			return "", s.err
		}

		if chunk.Err != nil {
			s.finishLocked(s.terminalStatus(), chunk.Err)
			return "", s.err
		}

		if chunk.FinishReason != "" {
			if chunk.Delta != "" {
				s.buf.WriteString(chunk.Delta)
				s.delivered = true
				s.pendEOF = true
				return chunk.Delta, nil
			}
			s.finishLocked(StatusComplete, nil)
			return "", io.EOF
		}

		if chunk.Delta == "" {
			continue
		}

		s.buf.WriteString(chunk.Delta)
		s.delivered = true
		return chunk.Delta, nil
	}
}

// Close cancels the stream and releases the connection. Closing before the
// final chunk leaves the stream at StatusPartial (or StatusError if
// nothing was delivered).
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.done {
		s.finishLocked(s.terminalStatus(), nil)
	}
	s.mu.Unlock()

	s.cancel()

	// Drain so the producer goroutine can exit.
	go func() {
		for range s.chunks {
		}
	}()

	return nil
}

// Content returns all text delivered so far.
func (s *Stream) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Status reports the stream's completion state.
func (s *Stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		return StatusPartial
	}
	return s.status
}

// Err returns the terminal error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) finishLocked(status Status, err error) {
	s.done = true
	s.status = status
	s.err = err
	s.cancel()
}

// terminalStatus distinguishes a stream that already produced output from
// one that never got going.
func (s *Stream) terminalStatus() Status {
	if s.delivered {
		return StatusPartial
	}
	return StatusError
}
