package llm

import (
	"context"
	"strings"
	"sync"
)

// TokenStream is a cancellable lazy sequence of text chunks from a
// completion call. Consume Tokens() until the channel closes, then check
// Err(). Cancel() stops the underlying call; chunks received so far remain
// available through Text().
type TokenStream struct {
	tokens chan string
	cancel context.CancelFunc

	mu       sync.Mutex
	buf      strings.Builder
	err      error
	canceled bool
}

// newTokenStream builds a stream; the producer goroutine writes chunks via
// emit and terminates it with finish.
func newTokenStream(cancel context.CancelFunc) *TokenStream {
	return &TokenStream{
		tokens: make(chan string, 16),
		cancel: cancel,
	}
}

// Tokens returns the chunk channel. It is closed when the completion ends,
// fails, or is cancelled.
func (s *TokenStream) Tokens() <-chan string {
	return s.tokens
}

// Cancel stops the underlying completion call. Accumulated text is kept.
func (s *TokenStream) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
	s.cancel()
}

// Canceled reports whether the stream was cancelled by the consumer.
func (s *TokenStream) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Err returns the terminal stream error, if any. Consumer cancellation and
// normal completion both leave Err nil.
func (s *TokenStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text returns all chunks accumulated so far.
func (s *TokenStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// emit records a chunk and forwards it to the consumer. The send races
// against cancellation so a consumer that stops draining after Cancel
// cannot wedge the producer.
func (s *TokenStream) emit(ctx context.Context, chunk string) {
	s.mu.Lock()
	s.buf.WriteString(chunk)
	s.mu.Unlock()
	select {
	case s.tokens <- chunk:
	case <-ctx.Done():
	}
}

// finish terminates the stream. A context cancellation triggered by the
// consumer is not treated as an error.
func (s *TokenStream) finish(err error) {
	s.mu.Lock()
	if err != nil && !s.canceled {
		s.err = err
	}
	s.mu.Unlock()
	close(s.tokens)
}
