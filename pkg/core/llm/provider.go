// Package llm provides text-generation functionality.
package llm

import (
	"context"
	"sync"
)

// Provider is the interface for large-language-model services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Generate produces a complete reply for the prompt in one call.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream produces a reply incrementally. Text fragments are
	// delivered on the returned stream as the model emits them.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (*Stream, error)
}

// GenerateOptions configures a generation call.
type GenerateOptions struct {
	Model           string // Provider-specific model identifier
	SystemPrompt    string // Optional system instruction
	MaxOutputTokens int32  // 0 means provider default
}

// Stream delivers incremental text fragments from a streaming
// generation call. Chunks() is closed when the stream ends; Err()
// reports the terminal error, if any, once Chunks() is drained.
type Stream struct {
	chunks chan string
	done   chan struct{}
	err    error
	errMu  sync.Mutex
}

// NewStream creates an empty stream. Intended for provider
// implementations and test fakes.
func NewStream() *Stream {
	return &Stream{
		chunks: make(chan string, 32),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of text fragments.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err returns the terminal stream error, or nil on clean completion.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Push delivers a fragment. Returns false if the stream was closed.
func (s *Stream) Push(text string) bool {
	select {
	case s.chunks <- text:
		return true
	case <-s.done:
		return false
	}
}

// SetError records the terminal error.
func (s *Stream) SetError(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Finish closes the fragment channel. Call exactly once, after the
// last Push.
func (s *Stream) Finish() {
	close(s.chunks)
}

// Close abandons the stream. Pending Push calls unblock and fail.
func (s *Stream) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}
