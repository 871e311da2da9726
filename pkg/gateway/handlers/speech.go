package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicewire/voicerelay/pkg/core/voice/tts"
)

// SpeechHandler serves POST /generate-audio: one-shot synthesis that
// returns a hosted audio URL instead of streaming chunks.
type SpeechHandler struct {
	Logger *slog.Logger
	TTS    tts.Provider
	Voice  string
}

type speechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type speechResponse struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration,omitempty"`
}

func (h SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	voice := strings.TrimSpace(req.VoiceID)
	if voice == "" {
		voice = h.Voice
	}

	result, err := h.TTS.Synthesize(r.Context(), text, tts.SynthesizeOptions{Voice: voice})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("synthesis failed", "error", err)
		}
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{
		AudioURL: result.AudioURL,
		Duration: result.Duration,
	})
}
