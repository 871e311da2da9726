// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
	"sync"
	"sync/atomic"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio in one call. Depending on the
	// provider the result carries audio bytes or a hosted audio URL.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// NewStreamingContext opens an incremental synthesis session. Text
	// is sent in chunks and audio is streamed back as it is generated.
	NewStreamingContext(ctx context.Context, opts SynthesizeOptions) (*StreamingContext, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // Voice identifier
	Style      string // Speaking style hint
	Format     string // Output container/encoding
	SampleRate int    // Sample rate in Hz
}

// Synthesis is the result of one-shot synthesis.
type Synthesis struct {
	Audio    []byte  // Raw audio bytes, if the provider returns them inline
	AudioURL string  // Hosted audio location, if the provider returns one
	Duration float64 // Duration in seconds, if reported
}

// StreamingContext manages an incremental TTS session. Text chunks go
// in via SendText and audio chunks come out via Audio.
type StreamingContext struct {
	audio     chan []byte
	err       error
	errMu     sync.Mutex
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// Set by provider implementations.
	SendFunc  func(text string, isFinal bool) error
	CloseFunc func() error
}

// NewStreamingContext creates the shared streaming-context plumbing.
// Provider implementations wire SendFunc and CloseFunc.
func NewStreamingContext() *StreamingContext {
	return &StreamingContext{
		audio: make(chan []byte, 100),
		done:  make(chan struct{}),
	}
}

// SendText sends a text chunk to be synthesized. Set isFinal on the
// last chunk to signal completion.
func (sc *StreamingContext) SendText(text string, isFinal bool) error {
	if sc.closed.Load() {
		return ErrContextClosed
	}
	if sc.SendFunc != nil {
		return sc.SendFunc(text, isFinal)
	}
	return nil
}

// Audio returns the channel of audio chunks. It is closed when the
// provider reports completion or the session fails.
func (sc *StreamingContext) Audio() <-chan []byte {
	return sc.audio
}

// Err returns the session error, if any.
func (sc *StreamingContext) Err() error {
	sc.errMu.Lock()
	defer sc.errMu.Unlock()
	return sc.err
}

// Close tears down the session.
func (sc *StreamingContext) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		sc.closed.Store(true)
		if sc.CloseFunc != nil {
			err = sc.CloseFunc()
		}
		close(sc.done)
	})
	return err
}

// Done returns a channel closed when the context is closed.
func (sc *StreamingContext) Done() <-chan struct{} {
	return sc.done
}

// PushAudio delivers an audio chunk. Returns false if the context is
// closed. For provider implementations.
func (sc *StreamingContext) PushAudio(chunk []byte) bool {
	select {
	case sc.audio <- chunk:
		return true
	case <-sc.done:
		return false
	}
}

// SetError records the session error. For provider implementations.
func (sc *StreamingContext) SetError(err error) {
	sc.errMu.Lock()
	sc.err = err
	sc.errMu.Unlock()
}

// FinishAudio closes the audio channel. For provider implementations.
func (sc *StreamingContext) FinishAudio() {
	close(sc.audio)
}

// ErrContextClosed is returned when sending to a closed context.
var ErrContextClosed = &contextClosedError{}

type contextClosedError struct{}

func (e *contextClosedError) Error() string { return "streaming context closed" }
