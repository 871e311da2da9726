package stt

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleProvider implements the STT Provider interface using the
// Google Cloud Speech-to-Text streaming API. Authentication uses
// Application Default Credentials.
type GoogleProvider struct {
	client *speech.Client
}

// NewGoogle creates a Google Cloud Speech provider.
func NewGoogle(ctx context.Context) (*GoogleProvider, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Name returns the provider identifier.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Close releases the underlying gRPC client.
func (p *GoogleProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// NewStream opens a streaming recognize session with interim results.
func (p *GoogleProvider) NewStream(ctx context.Context, opts StreamOptions) (Stream, error) {
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	language := opts.Language
	if language == "" {
		language = "en-US"
	}

	grpcStream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("start streaming recognize: %w", err)
	}

	if err := grpcStream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(sampleRate),
					LanguageCode:    language,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &googleStream{
		stream: grpcStream,
		deltas: make(chan TranscriptDelta, 100),
		done:   make(chan struct{}),
		ctx:    streamCtx,
		cancel: cancel,
	}
	go s.readLoop()
	return s, nil
}

type googleStream struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	deltas  chan TranscriptDelta
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	errMu sync.Mutex
	err   error
}

func (s *googleStream) readLoop() {
	defer func() {
		close(s.deltas)
		close(s.done)
	}()

	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if !s.closed.Load() {
				s.setErr(fmt.Errorf("streaming recognize: %w", err))
			}
			return
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			delta := TranscriptDelta{
				Text:    result.Alternatives[0].Transcript,
				IsFinal: result.IsFinal,
			}
			// The ctx case keeps Close from stranding this goroutine
			// when the consumer is gone and the buffer is full.
			select {
			case s.deltas <- delta:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *googleStream) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Err returns the terminal stream error observed by the read loop, if
// any.
func (s *googleStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *googleStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	})
}

// Finalize half-closes the gRPC stream. The provider flushes its
// remaining results, marks the last one final, and ends the stream.
func (s *googleStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.stream.CloseSend()
}

func (s *googleStream) Deltas() <-chan TranscriptDelta {
	return s.deltas
}

func (s *googleStream) Done() <-chan struct{} {
	return s.done
}

func (s *googleStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	return s.stream.CloseSend()
}
