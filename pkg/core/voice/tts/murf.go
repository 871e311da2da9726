package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	murfBaseURL  = "https://api.murf.ai"
	murfWSURL    = "wss://api.murf.ai/v1/speech/stream-input"
	DefaultVoice = "en-US-terrell"
)

// MurfProvider implements the TTS Provider interface using Murf's API.
type MurfProvider struct {
	apiKey     string
	baseURL    string
	wsURL      string
	httpClient *http.Client
}

// NewMurf creates a Murf TTS provider.
func NewMurf(apiKey string) *MurfProvider {
	return &MurfProvider{
		apiKey:     apiKey,
		baseURL:    murfBaseURL,
		wsURL:      murfWSURL,
		httpClient: &http.Client{},
	}
}

// NewMurfWith creates a Murf provider against specific endpoints with a
// custom HTTP client, useful for tests.
func NewMurfWith(apiKey, baseURL, wsURL string, client *http.Client) *MurfProvider {
	if baseURL == "" {
		baseURL = murfBaseURL
	}
	if wsURL == "" {
		wsURL = murfWSURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &MurfProvider{apiKey: apiKey, baseURL: baseURL, wsURL: wsURL, httpClient: client}
}

// Name returns the provider identifier.
func (p *MurfProvider) Name() string {
	return "murf"
}

type murfGenerateRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	Style   string `json:"style,omitempty"`
	Format  string `json:"format,omitempty"`
}

type murfGenerateResponse struct {
	AudioFile            string  `json:"audioFile"`
	AudioLengthInSeconds float64 `json:"audioLengthInSeconds"`
}

// Synthesize converts text to audio via Murf's REST API. The result
// carries a hosted audio URL.
func (p *MurfProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	body, err := json.Marshal(murfGenerateRequest{
		Text:    text,
		VoiceID: voice,
		Style:   opts.Style,
		Format:  opts.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/speech/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("murf error %d: %s", resp.StatusCode, string(errBody))
	}

	var out murfGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if out.AudioFile == "" {
		return nil, fmt.Errorf("murf: response carried no audio file")
	}
	return &Synthesis{AudioURL: out.AudioFile, Duration: out.AudioLengthInSeconds}, nil
}

type murfVoiceConfig struct {
	VoiceID string `json:"voiceId"`
	Style   string `json:"style,omitempty"`
}

type murfStreamInput struct {
	VoiceConfig *murfVoiceConfig `json:"voice_config,omitempty"`
	Text        string           `json:"text,omitempty"`
	End         bool             `json:"end,omitempty"`
}

type murfStreamOutput struct {
	Audio string `json:"audio"` // base64 audio chunk
	Final bool   `json:"final"`
	Error string `json:"error"`
}

// NewStreamingContext opens an incremental synthesis session over
// Murf's streaming websocket.
func (p *MurfProvider) NewStreamingContext(ctx context.Context, opts SynthesizeOptions) (*StreamingContext, error) {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("api-key", p.apiKey)
	if opts.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", opts.SampleRate))
	}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	if err := conn.WriteJSON(murfStreamInput{
		VoiceConfig: &murfVoiceConfig{VoiceID: voice, Style: opts.Style},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send voice config: %w", err)
	}

	sc := NewStreamingContext()

	var writeMu sync.Mutex
	sc.SendFunc = func(text string, isFinal bool) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(murfStreamInput{Text: text, End: isFinal})
	}
	sc.CloseFunc = func() error {
		return conn.Close()
	}

	go func() {
		defer sc.FinishAudio()
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				sc.SetError(ctx.Err())
				return
			case <-sc.Done():
				return
			default:
			}

			var msg murfStreamOutput
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				sc.SetError(err)
				return
			}

			if msg.Error != "" {
				sc.SetError(fmt.Errorf("murf error: %s", msg.Error))
				return
			}
			if msg.Audio != "" {
				chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err != nil {
					sc.SetError(fmt.Errorf("decode audio: %w", err))
					return
				}
				if !sc.PushAudio(chunk) {
					return
				}
			}
			if msg.Final {
				return
			}
		}
	}()

	return sc, nil
}
