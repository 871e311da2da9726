package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voicewire/voicerelay/pkg/core/types"
	"github.com/voicewire/voicerelay/pkg/core/voice/tts"
)

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

type stubNews struct {
	stories   []types.Story
	err       error
	limit     int
	randomize bool
}

func (s *stubNews) Fetch(ctx context.Context, limit int, randomize bool) ([]types.Story, error) {
	s.limit = limit
	s.randomize = randomize
	return s.stories, s.err
}

func TestNewsHandlerDefaults(t *testing.T) {
	fetcher := &stubNews{stories: []types.Story{{Title: "A", URL: "https://a"}}}
	h := NewsHandler{Fetcher: fetcher, DefaultLimit: 5, MaxLimit: 20}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news/tech", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if fetcher.limit != 5 || !fetcher.randomize {
		t.Fatalf("fetch args = (%d, %v)", fetcher.limit, fetcher.randomize)
	}
	var resp newsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.News) != 1 || resp.News[0].Title != "A" {
		t.Fatalf("news = %+v", resp.News)
	}
}

func TestNewsHandlerQueryParams(t *testing.T) {
	fetcher := &stubNews{}
	h := NewsHandler{Fetcher: fetcher, DefaultLimit: 5, MaxLimit: 10}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news/tech?limit=50&randomize=false", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fetcher.limit != 10 {
		t.Fatalf("limit not capped: %d", fetcher.limit)
	}
	if fetcher.randomize {
		t.Fatal("randomize=false not honored")
	}
}

func TestNewsHandlerRejectsBadParams(t *testing.T) {
	h := NewsHandler{Fetcher: &stubNews{}, DefaultLimit: 5, MaxLimit: 10}
	for _, target := range []string{"/news/tech?limit=zero", "/news/tech?limit=-3", "/news/tech?randomize=maybe"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestNewsHandlerUpstreamFailure(t *testing.T) {
	h := NewsHandler{Fetcher: &stubNews{err: errors.New("down")}, DefaultLimit: 5}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news/tech", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

type stubTTS struct {
	result *tts.Synthesis
	err    error
	text   string
	voice  string
}

func (s *stubTTS) Name() string { return "stub" }

func (s *stubTTS) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	s.text = text
	s.voice = opts.Voice
	return s.result, s.err
}

func (s *stubTTS) NewStreamingContext(ctx context.Context, opts tts.SynthesizeOptions) (*tts.StreamingContext, error) {
	return nil, errors.New("not implemented")
}

func TestSpeechHandlerGeneratesAudio(t *testing.T) {
	stub := &stubTTS{result: &tts.Synthesis{AudioURL: "https://cdn.example/a.wav", Duration: 1.5}}
	h := SpeechHandler{TTS: stub, Voice: "en-US-terrell"}

	body := strings.NewReader(`{"text":"hello world"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if stub.text != "hello world" || stub.voice != "en-US-terrell" {
		t.Fatalf("synthesize args = (%q, %q)", stub.text, stub.voice)
	}
	var resp speechResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AudioURL != "https://cdn.example/a.wav" {
		t.Fatalf("audio_url = %q", resp.AudioURL)
	}
}

func TestSpeechHandlerVoiceOverride(t *testing.T) {
	stub := &stubTTS{result: &tts.Synthesis{AudioURL: "https://cdn.example/a.wav"}}
	h := SpeechHandler{TTS: stub, Voice: "en-US-terrell"}

	body := strings.NewReader(`{"text":"hi","voice_id":"en-UK-ruby"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", body))

	if stub.voice != "en-UK-ruby" {
		t.Fatalf("voice = %q", stub.voice)
	}
}

func TestSpeechHandlerRejectsBadRequests(t *testing.T) {
	h := SpeechHandler{TTS: &stubTTS{}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate-audio", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", strings.NewReader(`{"text":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank text status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
}

func TestSpeechHandlerUnconfigured(t *testing.T) {
	h := SpeechHandler{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", strings.NewReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSpeechHandlerProviderFailure(t *testing.T) {
	h := SpeechHandler{TTS: &stubTTS{err: errors.New("murf down")}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-audio", strings.NewReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}
