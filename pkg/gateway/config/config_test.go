package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.STTBackend != STTBackendAssemblyAI {
		t.Fatalf("STTBackend = %q", cfg.STTBackend)
	}
	if cfg.LLMModel != "gemini-2.5-flash" {
		t.Fatalf("LLMModel = %q", cfg.LLMModel)
	}
	if cfg.TTSVoice != "en-US-terrell" {
		t.Fatalf("TTSVoice = %q", cfg.TTSVoice)
	}
	if cfg.STTSampleRate != 16000 {
		t.Fatalf("STTSampleRate = %d", cfg.STTSampleRate)
	}
	if cfg.HistoryMaxTurns != 50 {
		t.Fatalf("HistoryMaxTurns = %d", cfg.HistoryMaxTurns)
	}
	if cfg.LiveCloseGrace != 3*time.Second {
		t.Fatalf("LiveCloseGrace = %v", cfg.LiveCloseGrace)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("VOICERELAY_ADDR", ":9090")
	t.Setenv("VOICERELAY_STT_BACKEND", "google")
	t.Setenv("VOICERELAY_LLM_MODEL", "gemini-2.5-pro")
	t.Setenv("VOICERELAY_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VOICERELAY_LIVE_WS_PING_INTERVAL", "7s")
	t.Setenv("ASSEMBLYAI_API_KEY", " aa-key ")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.STTBackend != STTBackendGoogle {
		t.Fatalf("STTBackend = %q", cfg.STTBackend)
	}
	if cfg.LLMModel != "gemini-2.5-pro" {
		t.Fatalf("LLMModel = %q", cfg.LLMModel)
	}
	if cfg.LiveWSPingInterval != 7*time.Second {
		t.Fatalf("LiveWSPingInterval = %v", cfg.LiveWSPingInterval)
	}
	if cfg.AssemblyAIAPIKey != "aa-key" {
		t.Fatalf("AssemblyAIAPIKey = %q", cfg.AssemblyAIAPIKey)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://a.example"]; !ok {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example"]; !ok {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnvRejectsInvalid(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"VOICERELAY_STT_BACKEND", "whisperd"},
		{"VOICERELAY_LOG_FORMAT", "xml"},
		{"VOICERELAY_LOG_LEVEL", "loud"},
		{"VOICERELAY_HISTORY_MAX_TURNS", "0"},
		{"VOICERELAY_NEWS_MAX_LIMIT", "1"},
		{"VOICERELAY_LIVE_MAX_AUDIO_FRAME_BYTES", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}
