package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const assemblyAIStreamURL = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAIProvider implements the STT Provider interface using
// AssemblyAI's v3 realtime streaming API.
type AssemblyAIProvider struct {
	apiKey string
	wsURL  string
}

// NewAssemblyAI creates an AssemblyAI STT provider.
func NewAssemblyAI(apiKey string) *AssemblyAIProvider {
	return &AssemblyAIProvider{apiKey: apiKey, wsURL: assemblyAIStreamURL}
}

// NewAssemblyAIWithURL creates a provider against a specific websocket
// endpoint, useful for tests.
func NewAssemblyAIWithURL(apiKey, wsURL string) *AssemblyAIProvider {
	return &AssemblyAIProvider{apiKey: apiKey, wsURL: wsURL}
}

// Name returns the provider identifier.
func (p *AssemblyAIProvider) Name() string {
	return "assemblyai"
}

// NewStream opens a realtime transcription session over WebSocket.
func (p *AssemblyAIProvider) NewStream(ctx context.Context, opts StreamOptions) (Stream, error) {
	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}

	q := u.Query()
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("encoding", encoding)
	// Formatted turns give punctuated, casing-corrected finals.
	q.Set("format_turns", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &assemblyAIStream{
		conn:   conn,
		deltas: make(chan TranscriptDelta, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.readLoop()
	return s, nil
}

type assemblyAIStream struct {
	conn    *websocket.Conn
	deltas  chan TranscriptDelta
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	errMu sync.Mutex
	err   error
}

type assemblyAIMessage struct {
	Type            string `json:"type"` // "Begin", "Turn", "Termination"
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	TurnOrder       int64  `json:"turn_order"`
	Error           string `json:"error"`
}

type assemblyAICommand struct {
	Type string `json:"type"` // "ForceEndpoint", "Terminate"
}

func (s *assemblyAIStream) readLoop() {
	defer func() {
		close(s.deltas)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		delta, errText, ok := decodeAssemblyAIMessage(data)
		if errText != "" {
			s.setErr(fmt.Errorf("assemblyai: %s", errText))
			return
		}
		if !ok {
			continue
		}
		// The ctx case keeps Close from stranding this goroutine when
		// the consumer is gone and the buffer is full.
		select {
		case s.deltas <- delta:
		case <-s.ctx.Done():
			return
		}
	}
}

// decodeAssemblyAIMessage maps a raw server message to a transcript
// delta. errText carries a provider-reported error; ok is false for
// non-transcript messages.
func decodeAssemblyAIMessage(data []byte) (delta TranscriptDelta, errText string, ok bool) {
	var msg assemblyAIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TranscriptDelta{}, "", false
	}
	if msg.Error != "" {
		return TranscriptDelta{}, msg.Error, false
	}
	if msg.Type != "Turn" {
		return TranscriptDelta{}, "", false
	}
	// With format_turns enabled the provider re-sends the closing
	// transcript once formatted; only the formatted one is final.
	if msg.EndOfTurn && !msg.TurnIsFormatted {
		return TranscriptDelta{Text: msg.Transcript, IsFinal: false}, "", true
	}
	return TranscriptDelta{Text: msg.Transcript, IsFinal: msg.EndOfTurn}, "", true
}

func (s *assemblyAIStream) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Err returns the terminal stream error observed by the read loop, if
// any.
func (s *assemblyAIStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SendAudio forwards raw PCM bytes to the provider.
func (s *assemblyAIStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize forces the provider to close out the utterance in progress.
func (s *assemblyAIStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	payload, _ := json.Marshal(assemblyAICommand{Type: "ForceEndpoint"})
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Deltas returns the channel of transcript updates.
func (s *assemblyAIStream) Deltas() <-chan TranscriptDelta {
	return s.deltas
}

// Done returns a channel closed when the session ends.
func (s *assemblyAIStream) Done() <-chan struct{} {
	return s.done
}

// Close terminates the session.
func (s *assemblyAIStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	payload, _ := json.Marshal(assemblyAICommand{Type: "Terminate"})
	_ = s.conn.WriteMessage(websocket.TextMessage, payload)
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
