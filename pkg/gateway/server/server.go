// Package server wires configuration, providers, and handlers into
// one HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/voicewire/voicerelay/pkg/core/llm"
	"github.com/voicewire/voicerelay/pkg/core/news"
	"github.com/voicewire/voicerelay/pkg/core/voice/stt"
	"github.com/voicewire/voicerelay/pkg/core/voice/tts"
	"github.com/voicewire/voicerelay/pkg/gateway/config"
	"github.com/voicewire/voicerelay/pkg/gateway/handlers"
	"github.com/voicewire/voicerelay/pkg/gateway/live/session"
	"github.com/voicewire/voicerelay/pkg/gateway/live/sessions"
	"github.com/voicewire/voicerelay/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	registry   *sessions.Registry
	tracker    *sessions.Tracker
	news       *news.Client
	ttsDefault tts.Provider
	googleSTT  *stt.GoogleProvider

	draining atomic.Bool
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		registry:   sessions.NewRegistry(cfg.HistoryMaxTurns),
		tracker:    sessions.NewTracker(),
		news:       news.NewClientWith(news.DefaultBaseURL, httpClient),
	}

	if cfg.MurfAPIKey != "" {
		s.ttsDefault = tts.NewMurf(cfg.MurfAPIKey)
	}
	if cfg.STTBackend == config.STTBackendGoogle {
		googleSTT, err := stt.NewGoogle(ctx)
		if err != nil {
			return nil, fmt.Errorf("init google speech client: %w", err)
		}
		s.googleSTT = googleSTT
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/news/tech", handlers.NewsHandler{
		Logger:       s.logger,
		Fetcher:      s.news,
		DefaultLimit: s.cfg.NewsDefaultLimit,
		MaxLimit:     s.cfg.NewsMaxLimit,
	})
	s.mux.Handle("/generate-audio", handlers.SpeechHandler{
		Logger: s.logger,
		TTS:    s.ttsDefault,
		Voice:  s.cfg.TTSVoice,
	})
	s.mux.Handle("/agent/chat/{session_id}", handlers.LiveHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Registry: s.registry,
		Tracker:  s.tracker,
		Draining: s.draining.Load,
		News:     s.news,
		NewSTT:   s.newSTTProvider,
		NewLLM:   s.newLLMProvider,
		NewTTS:   s.newTTSProvider,
	})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) newSTTProvider(apiKey string) (session.STTProvider, error) {
	switch s.cfg.STTBackend {
	case config.STTBackendGoogle:
		return session.STTProviderAdapter{Provider: s.googleSTT}, nil
	default:
		if apiKey == "" {
			return nil, fmt.Errorf("missing assemblyai api key")
		}
		return session.STTProviderAdapter{Provider: stt.NewAssemblyAI(apiKey)}, nil
	}
}

func (s *Server) newLLMProvider(ctx context.Context, apiKey string) (llm.Provider, error) {
	provider, err := llm.NewGemini(ctx, apiKey, llm.WithGeminiModel(s.cfg.LLMModel))
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Server) newTTSProvider(apiKey string) (session.TTSProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing murf api key")
	}
	return session.TTSProviderAdapter{Provider: tts.NewMurf(apiKey)}, nil
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes the live handler refuse new sessions.
func (s *Server) SetDraining(v bool) {
	s.draining.Store(v)
}

// WarnLiveSessions tells every live connection the server is going
// away.
func (s *Server) WarnLiveSessions(text string) int {
	return s.tracker.NotifyAll(text)
}

// WaitLiveSessions blocks until live connections drain or ctx expires.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelLiveSessions force-closes any connections still open.
func (s *Server) CancelLiveSessions() int {
	return s.tracker.CancelAll()
}

// LiveSessionCount reports currently open live connections.
func (s *Server) LiveSessionCount() int {
	return s.tracker.Count()
}

// Close releases provider clients held by the server.
func (s *Server) Close() error {
	if s.googleSTT != nil {
		return s.googleSTT.Close()
	}
	return nil
}
