// Package stt provides speech-to-text functionality.
package stt

import "context"

// Provider is the interface for streaming speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a realtime transcription session. Audio is sent
	// incrementally via Stream.SendAudio and transcript updates are
	// received via Stream.Deltas.
	NewStream(ctx context.Context, opts StreamOptions) (Stream, error)
}

// StreamOptions configures a realtime transcription session.
type StreamOptions struct {
	Language   string // ISO language code (default: "en")
	Encoding   string // Raw audio encoding (default: "pcm_s16le")
	SampleRate int    // Audio sample rate in Hz (default: 16000)
}

// Stream is one open realtime transcription session.
type Stream interface {
	// SendAudio forwards raw audio bytes to the provider.
	SendAudio(data []byte) error

	// Finalize flushes buffered audio and forces the provider to close
	// out the utterance in progress.
	Finalize() error

	// Deltas returns the channel of transcript updates. It is closed
	// when the session ends.
	Deltas() <-chan TranscriptDelta

	// Done returns a channel closed when the session ends.
	Done() <-chan struct{}

	// Err returns the terminal stream error, if any, once Deltas is
	// closed. A clean end reports nil.
	Err() error

	// Close terminates the session.
	Close() error
}

// TranscriptDelta is a streaming transcript update.
type TranscriptDelta struct {
	Text    string // Current transcript for the utterance in progress
	IsFinal bool   // True when the provider marks end of turn
}
