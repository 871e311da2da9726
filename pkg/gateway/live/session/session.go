// Package session runs one live voice conversation over a websocket:
// inbound microphone audio is relayed to a speech-to-text stream,
// committed utterances run through generation and synthesis, and all
// outbound events funnel through a single writer goroutine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voicewire/voicerelay/pkg/core/llm"
	"github.com/voicewire/voicerelay/pkg/core/voice/stt"
	"github.com/voicewire/voicerelay/pkg/gateway/live/protocol"
)

const (
	outboundPriorityQueueSize = 8
	defaultOutboundQueueSize  = 128
	defaultCloseGrace         = 3 * time.Second
)

type STTConfig struct {
	Language   string
	Encoding   string
	SampleRate int
}

type STTSession interface {
	SendAudio([]byte) error
	FinalizeUtterance() error
	Deltas() <-chan stt.TranscriptDelta
	Err() error
	Close() error
}

type STTProvider interface {
	NewSession(ctx context.Context, cfg STTConfig) (STTSession, error)
}

type STTProviderAdapter struct {
	Provider stt.Provider
}

func (a STTProviderAdapter) NewSession(ctx context.Context, cfg STTConfig) (STTSession, error) {
	if a.Provider == nil {
		return nil, fmt.Errorf("stt provider is nil")
	}
	stream, err := a.Provider.NewStream(ctx, stt.StreamOptions{
		Language:   cfg.Language,
		Encoding:   cfg.Encoding,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	return sttSessionAdapter{inner: stream}, nil
}

type sttSessionAdapter struct {
	inner stt.Stream
}

func (a sttSessionAdapter) SendAudio(data []byte) error {
	if a.inner == nil {
		return fmt.Errorf("stt stream is nil")
	}
	return a.inner.SendAudio(data)
}

func (a sttSessionAdapter) FinalizeUtterance() error {
	if a.inner == nil {
		return fmt.Errorf("stt stream is nil")
	}
	return a.inner.Finalize()
}

func (a sttSessionAdapter) Deltas() <-chan stt.TranscriptDelta {
	if a.inner == nil {
		ch := make(chan stt.TranscriptDelta)
		close(ch)
		return ch
	}
	return a.inner.Deltas()
}

func (a sttSessionAdapter) Err() error {
	if a.inner == nil {
		return nil
	}
	return a.inner.Err()
}

func (a sttSessionAdapter) Close() error {
	if a.inner == nil {
		return nil
	}
	return a.inner.Close()
}

// Credentials are the per-session provider keys. They seed from server
// configuration and may be overridden by a config_keys frame for any
// leg that has not been opened yet.
type Credentials struct {
	STTKey string
	LLMKey string
	TTSKey string
}

type Config struct {
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	CloseGrace          time.Duration
	OutboundQueueSize   int

	STTLanguage   string
	STTEncoding   string
	STTSampleRate int
	LLMModel      string
	TTSVoice      string
	TTSFormat     string
	TTSSampleRate int
	NewsLimit     int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	NewSTT    func(apiKey string) (STTProvider, error)
	NewLLM    func(ctx context.Context, apiKey string) (llm.Provider, error)
	NewTTS    func(apiKey string) (TTSProvider, error)
	News      NewsFetcher
	History   conversationHistory
	Creds     Credentials
	SessionID string
	Config    Config
}

type LiveSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	newSTT    func(apiKey string) (STTProvider, error)
	newLLM    func(ctx context.Context, apiKey string) (llm.Provider, error)
	newTTS    func(apiKey string) (TTSProvider, error)
	news      NewsFetcher
	history   conversationHistory
	sessionID string
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	credsMu sync.Mutex
	creds   Credentials

	llmMu sync.Mutex
	llm   llm.Provider

	ttsMu sync.Mutex
	tts   TTSProvider
}

type outboundFrame struct {
	payload []byte
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.NewSTT == nil {
		return nil, fmt.Errorf("stt factory is required")
	}
	if deps.NewLLM == nil {
		return nil, fmt.Errorf("llm factory is required")
	}
	if deps.NewTTS == nil {
		return nil, fmt.Errorf("tts factory is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = defaultOutboundQueueSize
	}
	if deps.Config.CloseGrace <= 0 {
		deps.Config.CloseGrace = defaultCloseGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LiveSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		newSTT:           deps.NewSTT,
		newLLM:           deps.NewLLM,
		newTTS:           deps.NewTTS,
		news:             deps.News,
		history:          deps.History,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		creds:            deps.Creds,
	}, nil
}

// Cancel tears the session down. Safe from any goroutine.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// Notify delivers a session-level error ahead of queued events. Used
// during server drain.
func (s *LiveSession) Notify(text string) error {
	return s.sendPriorityError(text)
}

func (s *LiveSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func() {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
	}

	sttProvider, err := s.newSTT(s.credentials().STTKey)
	if err != nil {
		_ = s.sendPriorityError("speech recognition unavailable: " + err.Error())
		flushAndClose()
		return err
	}
	sttSession, err := sttProvider.NewSession(s.ctx, STTConfig{
		Language:   s.cfg.STTLanguage,
		Encoding:   s.cfg.STTEncoding,
		SampleRate: s.cfg.STTSampleRate,
	})
	if err != nil {
		_ = s.sendPriorityError("speech recognition unavailable")
		flushAndClose()
		return err
	}
	defer sttSession.Close()

	pipeline := &responsePipeline{
		getLLM:  s.lazyLLM,
		getTTS:  s.lazyTTS,
		news:    s.news,
		history: s.history,
		cfg:     s.cfg,
		logger:  s.logger,
		emit:    s.sendJSON,
	}

	var (
		agg              turnAggregator
		pendingUtterance []string
		pipelineDoneCh   chan struct{}
		deltaCh          = sttSession.Deltas()

		closing         bool
		sawFinalClosing bool
		closeTimerCh    <-chan time.Time
	)

	var wg sync.WaitGroup
	defer func() {
		s.cancel()
		wg.Wait()
	}()

	startPipeline := func(utterance string) {
		done := make(chan struct{})
		pipelineDoneCh = done
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done)
			pipeline.run(s.ctx, utterance)
		}()
	}

	pipelineIdle := func() bool {
		return pipelineDoneCh == nil && len(pendingUtterance) == 0
	}

	// The session is drained once the client has signaled end of
	// audio, every queued utterance has run, and either the flushed
	// final transcript arrived or the grace window elapsed.
	drained := func() bool {
		return closing && pipelineIdle() && (sawFinalClosing || deltaCh == nil)
	}

	pipelineDone := func() <-chan struct{} {
		return pipelineDoneCh
	}

	for {
		if drained() {
			flushAndClose()
			return nil
		}

		select {
		case <-s.ctx.Done():
			return nil

		case err := <-writerErrCh:
			return err

		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsUnexpectedCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Info("client disconnected", "session_id", s.sessionID, "error", frame.err)
				}
				return nil
			}
			switch frame.messageType {
			case websocket.BinaryMessage:
				if closing {
					continue
				}
				if s.cfg.MaxAudioFrameBytes > 0 && len(frame.data) > s.cfg.MaxAudioFrameBytes {
					_ = s.sendPriorityError("audio frame exceeds max size")
					flushAndClose()
					return nil
				}
				if err := sttSession.SendAudio(frame.data); err != nil {
					_ = s.sendPriorityError("failed to forward audio")
					flushAndClose()
					return err
				}
			case websocket.TextMessage:
				msg, decErr := protocol.DecodeClientMessage(frame.data)
				if decErr != nil {
					_ = s.sendPriorityError(decErr.Error())
					flushAndClose()
					return nil
				}
				switch m := msg.(type) {
				case protocol.ClientEndOfAudio:
					if closing {
						continue
					}
					closing = true
					if err := sttSession.FinalizeUtterance(); err != nil {
						s.logger.Warn("stt finalize failed", "session_id", s.sessionID, "error", err)
					}
					closeTimer := time.NewTimer(s.cfg.CloseGrace)
					defer closeTimer.Stop()
					closeTimerCh = closeTimer.C
				case protocol.ClientConfigKeys:
					s.applyConfigKeys(m)
				}
			}

		case delta, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				if !closing {
					text := "speech recognition stream ended"
					if sttErr := sttSession.Err(); sttErr != nil {
						text = "speech recognition failed: " + sttErr.Error()
					}
					_ = s.sendPriorityError(text)
					flushAndClose()
					return nil
				}
				continue
			}
			if delta.IsFinal {
				utterance, ok := agg.Final(delta.Text)
				if !ok {
					continue
				}
				if closing {
					sawFinalClosing = true
				}
				if err := s.sendJSON(protocol.ServerFinalTranscript{Type: protocol.TypeFinalTranscript, Text: utterance}); err != nil {
					return nil
				}
				if err := s.sendJSON(protocol.ServerTurnEnd{Type: protocol.TypeTurnEnd}); err != nil {
					return nil
				}
				if pipelineDoneCh != nil {
					pendingUtterance = append(pendingUtterance, utterance)
				} else {
					startPipeline(utterance)
				}
			} else {
				text, ok := agg.Partial(delta.Text)
				if !ok {
					continue
				}
				if err := s.sendJSON(protocol.ServerPartialTranscript{Type: protocol.TypePartialTranscript, Text: text}); err != nil {
					return nil
				}
			}

		case <-pipelineDone():
			pipelineDoneCh = nil
			if len(pendingUtterance) > 0 {
				next := pendingUtterance[0]
				pendingUtterance = pendingUtterance[1:]
				startPipeline(next)
			}

		case <-closeTimerCh:
			closeTimerCh = nil
			sawFinalClosing = true
		}
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err == nil && s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		frame := inboundFrame{messageType: messageType, data: data, err: err}
		select {
		case out <- frame:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *LiveSession) credentials() Credentials {
	s.credsMu.Lock()
	defer s.credsMu.Unlock()
	return s.creds
}

// applyConfigKeys updates credentials for provider legs that have not
// opened yet. The speech-to-text leg opens at session start, so its
// key can never be replaced mid-session.
func (s *LiveSession) applyConfigKeys(msg protocol.ClientConfigKeys) {
	for name, value := range msg.Keys {
		switch name {
		case protocol.KeyAssemblyAI:
			s.logger.Warn("ignoring stt key update, stt leg already open", "session_id", s.sessionID)
		case protocol.KeyGemini:
			s.llmMu.Lock()
			open := s.llm != nil
			s.llmMu.Unlock()
			if open {
				s.logger.Warn("ignoring llm key update, llm leg already open", "session_id", s.sessionID)
				continue
			}
			s.credsMu.Lock()
			s.creds.LLMKey = value
			s.credsMu.Unlock()
		case protocol.KeyMurf:
			s.ttsMu.Lock()
			open := s.tts != nil
			s.ttsMu.Unlock()
			if open {
				s.logger.Warn("ignoring tts key update, tts leg already open", "session_id", s.sessionID)
				continue
			}
			s.credsMu.Lock()
			s.creds.TTSKey = value
			s.credsMu.Unlock()
		default:
			s.logger.Warn("ignoring unknown credential key", "session_id", s.sessionID, "key", name)
		}
	}
	s.logger.Info("config keys received", "session_id", s.sessionID, "keys", msg.RedactedForLog())
}

func (s *LiveSession) lazyLLM(ctx context.Context) (llm.Provider, error) {
	s.llmMu.Lock()
	defer s.llmMu.Unlock()
	if s.llm != nil {
		return s.llm, nil
	}
	key := s.credentials().LLMKey
	if key == "" {
		return nil, fmt.Errorf("missing language model api key")
	}
	provider, err := s.newLLM(ctx, key)
	if err != nil {
		return nil, err
	}
	s.llm = provider
	return provider, nil
}

func (s *LiveSession) lazyTTS() (TTSProvider, error) {
	s.ttsMu.Lock()
	defer s.ttsMu.Unlock()
	if s.tts != nil {
		return s.tts, nil
	}
	key := s.credentials().TTSKey
	if key == "" {
		return nil, fmt.Errorf("missing speech synthesis api key")
	}
	provider, err := s.newTTS(key)
	if err != nil {
		return nil, err
	}
	s.tts = provider
	return provider, nil
}

// sendJSON enqueues an event on the ordered outbound queue. Once the
// session context is canceled the event is dropped.
func (s *LiveSession) sendJSON(v any) error {
	payload, err := encodeEvent(v)
	if err != nil {
		return err
	}
	select {
	case s.outboundNormal <- outboundFrame{payload: payload}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// sendPriorityError enqueues a session-fatal error ahead of queued
// events.
func (s *LiveSession) sendPriorityError(text string) error {
	payload, err := encodeEvent(protocol.ServerError{Type: protocol.TypeError, Text: text})
	if err != nil {
		return err
	}
	select {
	case s.outboundPriority <- outboundFrame{payload: payload}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("priority queue full")
	}
}
