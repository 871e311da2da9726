package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voicewire/voicerelay/pkg/core/llm"
	"github.com/voicewire/voicerelay/pkg/gateway/config"
	"github.com/voicewire/voicerelay/pkg/gateway/live/protocol"
	"github.com/voicewire/voicerelay/pkg/gateway/live/session"
	"github.com/voicewire/voicerelay/pkg/gateway/live/sessions"
	"github.com/voicewire/voicerelay/pkg/gateway/mw"
)

// LiveHandler upgrades GET /agent/chat/{session_id} and runs the
// voice conversation until the client hangs up or says goodbye.
type LiveHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *sessions.Registry
	Tracker  *sessions.Tracker
	Draining func() bool
	News     session.NewsFetcher

	NewSTT func(apiKey string) (session.STTProvider, error)
	NewLLM func(ctx context.Context, apiKey string) (llm.Provider, error)
	NewTTS func(apiKey string) (session.TTSProvider, error)
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Draining != nil && h.Draining() {
		writeError(w, http.StatusServiceUnavailable, "server is draining")
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if !h.originAllowed(r) {
		writeError(w, http.StatusForbidden, "origin is not allowed")
		return
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	// The recognition leg opens at session start, so a usable key must
	// be present before the session runs.
	if h.Config.STTBackend == config.STTBackendAssemblyAI && h.Config.AssemblyAIAPIKey == "" {
		h.writeWSError(conn, "speech recognition is not configured")
		return
	}

	history := h.Registry.GetOrCreate(sessionID)

	live, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger.With("session_id", sessionID, "request_id", reqID),
		NewSTT:    h.NewSTT,
		NewLLM:    h.NewLLM,
		NewTTS:    h.NewTTS,
		News:      h.News,
		History:   history,
		SessionID: sessionID,
		Creds: session.Credentials{
			STTKey: h.Config.AssemblyAIAPIKey,
			LLMKey: h.Config.GeminiAPIKey,
			TTSKey: h.Config.MurfAPIKey,
		},
		Config: session.Config{
			MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			ReadTimeout:         h.Config.LiveWSReadTimeout,
			CloseGrace:          h.Config.LiveCloseGrace,
			OutboundQueueSize:   h.Config.LiveOutboundQueueSize,
			STTLanguage:         h.Config.STTLanguage,
			STTEncoding:         h.Config.STTEncoding,
			STTSampleRate:       h.Config.STTSampleRate,
			LLMModel:            h.Config.LLMModel,
			TTSVoice:            h.Config.TTSVoice,
			TTSFormat:           h.Config.TTSFormat,
			TTSSampleRate:       h.Config.TTSSampleRate,
			NewsLimit:           h.Config.NewsDefaultLimit,
		},
	})
	if err != nil {
		logger.Error("live session setup failed", "session_id", sessionID, "error", err)
		h.writeWSError(conn, "failed to start session")
		return
	}

	connID := "c_" + mw.RandHex(8)
	if h.Tracker != nil {
		unregister := h.Tracker.Register(connID, sessions.ConnHandle{
			Cancel: live.Cancel,
			Notify: live.Notify,
		})
		defer unregister()
	}

	logger.Info("live session started", "session_id", sessionID, "conn_id", connID)
	if err := live.Run(); err != nil {
		logger.Warn("live session ended with error", "session_id", sessionID, "conn_id", connID, "error", err)
		return
	}
	logger.Info("live session ended", "session_id", sessionID, "conn_id", connID)
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// writeWSError sends one error event on a connection that never got a
// running session, then closes it.
func (h LiveHandler) writeWSError(conn *websocket.Conn, text string) {
	writeTimeout := h.Config.LiveWSWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	deadline := time.Now().Add(writeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(protocol.ServerError{Type: protocol.TypeError, Text: text})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
}
