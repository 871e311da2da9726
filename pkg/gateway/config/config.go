package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type STTBackend string

const (
	STTBackendAssemblyAI STTBackend = "assemblyai"
	STTBackendGoogle     STTBackend = "google"
)

type Config struct {
	Addr string

	// Default provider credentials. Sessions may override the llm and
	// tts keys over the wire before those legs open.
	AssemblyAIAPIKey string
	GeminiAPIKey     string
	MurfAPIKey       string

	STTBackend    STTBackend
	STTLanguage   string
	STTEncoding   string
	STTSampleRate int

	LLMModel string

	TTSVoice      string
	TTSFormat     string
	TTSSampleRate int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket session limits.
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration
	LiveHandshakeTimeout    time.Duration
	LiveCloseGrace          time.Duration
	LiveOutboundQueueSize   int

	HistoryMaxTurns int

	NewsDefaultLimit int
	NewsMaxLimit     int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	LogFormat string
	LogLevel  string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("VOICERELAY_ADDR", ":8080"),
		AssemblyAIAPIKey:        strings.TrimSpace(os.Getenv("ASSEMBLYAI_API_KEY")),
		GeminiAPIKey:            strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		MurfAPIKey:              strings.TrimSpace(os.Getenv("MURF_API_KEY")),
		STTBackend:              STTBackend(strings.ToLower(envOr("VOICERELAY_STT_BACKEND", string(STTBackendAssemblyAI)))),
		STTLanguage:             envOr("VOICERELAY_STT_LANGUAGE", "en-US"),
		STTEncoding:             envOr("VOICERELAY_STT_ENCODING", "pcm_s16le"),
		STTSampleRate:           envIntOr("VOICERELAY_STT_SAMPLE_RATE", 16000),
		LLMModel:                envOr("VOICERELAY_LLM_MODEL", "gemini-2.5-flash"),
		TTSVoice:                envOr("VOICERELAY_TTS_VOICE", "en-US-terrell"),
		TTSFormat:               envOr("VOICERELAY_TTS_FORMAT", ""),
		TTSSampleRate:           envIntOr("VOICERELAY_TTS_SAMPLE_RATE", 0),
		CORSAllowedOrigins:      make(map[string]struct{}),
		LiveMaxAudioFrameBytes:  envIntOr("VOICERELAY_LIVE_MAX_AUDIO_FRAME_BYTES", 64*1024),
		LiveMaxJSONMessageBytes: envInt64Or("VOICERELAY_LIVE_MAX_JSON_MESSAGE_BYTES", 256*1024),
		LiveWSPingInterval:      envDurationOr("VOICERELAY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("VOICERELAY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:       envDurationOr("VOICERELAY_LIVE_WS_READ_TIMEOUT", 0),
		LiveHandshakeTimeout:    envDurationOr("VOICERELAY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveCloseGrace:          envDurationOr("VOICERELAY_LIVE_CLOSE_GRACE", 3*time.Second),
		LiveOutboundQueueSize:   envIntOr("VOICERELAY_LIVE_OUTBOUND_QUEUE_SIZE", 128),
		HistoryMaxTurns:         envIntOr("VOICERELAY_HISTORY_MAX_TURNS", 50),
		NewsDefaultLimit:        envIntOr("VOICERELAY_NEWS_DEFAULT_LIMIT", 5),
		NewsMaxLimit:            envIntOr("VOICERELAY_NEWS_MAX_LIMIT", 20),
		ReadHeaderTimeout:       envDurationOr("VOICERELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("VOICERELAY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		LogFormat:               strings.ToLower(envOr("VOICERELAY_LOG_FORMAT", "text")),
		LogLevel:                strings.ToLower(envOr("VOICERELAY_LOG_LEVEL", "info")),
	}

	switch cfg.STTBackend {
	case STTBackendAssemblyAI, STTBackendGoogle:
	default:
		return Config{}, fmt.Errorf("VOICERELAY_STT_BACKEND must be one of assemblyai|google")
	}

	for _, origin := range splitCSV(os.Getenv("VOICERELAY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.STTSampleRate <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_STT_SAMPLE_RATE must be > 0")
	}
	if strings.TrimSpace(cfg.STTEncoding) == "" {
		return Config{}, fmt.Errorf("VOICERELAY_STT_ENCODING must not be empty")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return Config{}, fmt.Errorf("VOICERELAY_LLM_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.TTSVoice) == "" {
		return Config{}, fmt.Errorf("VOICERELAY_TTS_VOICE must not be empty")
	}
	if cfg.TTSSampleRate < 0 {
		return Config{}, fmt.Errorf("VOICERELAY_TTS_SAMPLE_RATE must be >= 0")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveCloseGrace <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_CLOSE_GRACE must be > 0")
	}
	if cfg.LiveOutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.HistoryMaxTurns <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_HISTORY_MAX_TURNS must be > 0")
	}
	if cfg.NewsDefaultLimit <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_NEWS_DEFAULT_LIMIT must be > 0")
	}
	if cfg.NewsMaxLimit < cfg.NewsDefaultLimit {
		return Config{}, fmt.Errorf("VOICERELAY_NEWS_MAX_LIMIT must be >= VOICERELAY_NEWS_DEFAULT_LIMIT")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("VOICERELAY_LOG_FORMAT must be one of text|json")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("VOICERELAY_LOG_LEVEL must be one of debug|info|warn|error")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
