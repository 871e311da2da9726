package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesizeReturnsHostedURL(t *testing.T) {
	var gotReq murfGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("api-key") != "k123" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"audioFile":"https://cdn.example/clip.mp3","audioLengthInSeconds":2.5}`)
	}))
	t.Cleanup(srv.Close)

	p := NewMurfWith("k123", srv.URL, "", srv.Client())
	syn, err := p.Synthesize(context.Background(), "hello there", SynthesizeOptions{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if syn.AudioURL != "https://cdn.example/clip.mp3" {
		t.Fatalf("audio url = %q", syn.AudioURL)
	}
	if syn.Duration != 2.5 {
		t.Fatalf("duration = %v", syn.Duration)
	}
	if gotReq.Text != "hello there" {
		t.Fatalf("request text = %q", gotReq.Text)
	}
	if gotReq.VoiceID != DefaultVoice {
		t.Fatalf("request voice = %q, want default %q", gotReq.VoiceID, DefaultVoice)
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid voice"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p := NewMurfWith("k123", srv.URL, "", srv.Client())
	if _, err := p.Synthesize(context.Background(), "hello", SynthesizeOptions{Voice: "bogus"}); err == nil {
		t.Fatal("expected error from provider failure")
	}
}

func TestSynthesizeEmptyAudioFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	p := NewMurfWith("k123", srv.URL, "", srv.Client())
	if _, err := p.Synthesize(context.Background(), "hello", SynthesizeOptions{}); err == nil {
		t.Fatal("expected error when response carries no audio file")
	}
}
