// Package protocol defines the JSON frame vocabulary spoken over the
// client websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound event types, in the order a turn emits them.
const (
	TypePartialTranscript = "partial_transcript"
	TypeFinalTranscript   = "final_transcript"
	TypeTurnEnd           = "turn_end"
	TypeLLMChunk          = "llm_chunk"
	TypeLLMEnd            = "llm_end"
	TypeAudioChunk        = "audio_chunk"
	TypeEndOfAudio        = "end_of_audio"
	TypeError             = "error"
)

// Credential key names accepted in config_keys frames.
const (
	KeyAssemblyAI = "assemblyai"
	KeyGemini     = "gemini"
	KeyMurf       = "murf"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientEndOfAudio signals that the client is done sending microphone
// audio for this connection.
type ClientEndOfAudio struct {
	Type string `json:"type"`
}

// ClientConfigKeys carries per-session provider credentials. Keys only
// apply to provider legs that have not been opened yet.
type ClientConfigKeys struct {
	Type string            `json:"type"`
	Keys map[string]string `json:"keys"`
}

// RedactedForLog lists which credential names were supplied without
// exposing their values.
func (m ClientConfigKeys) RedactedForLog() []string {
	names := make([]string, 0, len(m.Keys))
	for k := range m.Keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		names = append(names, k)
	}
	return names
}

// DecodeClientMessage decodes a text control frame from the client.
// Binary frames (raw audio) never reach this function.
func DecodeClientMessage(data []byte) (any, error) {
	// The original browser client sends a bare "end_of_audio" string;
	// accept it alongside the JSON envelope.
	if strings.TrimSpace(string(data)) == TypeEndOfAudio {
		return ClientEndOfAudio{Type: TypeEndOfAudio}, nil
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeEndOfAudio:
		return ClientEndOfAudio{Type: typ}, nil
	case "config_keys":
		var msg ClientConfigKeys
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid config_keys frame", "")
		}
		if len(msg.Keys) == 0 {
			return nil, badRequest("config_keys.keys is required", "keys")
		}
		for name, value := range msg.Keys {
			if strings.TrimSpace(name) == "" {
				return nil, badRequest("config_keys.keys names must be non-empty", "keys")
			}
			if strings.TrimSpace(value) == "" {
				return nil, badRequest("config_keys.keys values must be non-empty", "keys."+name)
			}
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

type ServerPartialTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerFinalTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerTurnEnd struct {
	Type string `json:"type"`
}

type ServerLLMChunk struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerLLMEnd struct {
	Type string `json:"type"`
}

// ServerAudioChunk carries one base64-encoded synthesized audio chunk.
type ServerAudioChunk struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type ServerEndOfAudio struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
