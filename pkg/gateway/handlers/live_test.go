package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicewire/voicerelay/pkg/gateway/config"
	"github.com/voicewire/voicerelay/pkg/gateway/live/sessions"
)

func newLiveRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.SetPathValue("session_id", "abc123")
	return req
}

func TestLiveHandlerRejectsNonGet(t *testing.T) {
	h := LiveHandler{Registry: sessions.NewRegistry(10)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agent/chat/abc123", nil)
	req.SetPathValue("session_id", "abc123")

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLiveHandlerRejectsWhileDraining(t *testing.T) {
	h := LiveHandler{
		Registry: sessions.NewRegistry(10),
		Draining: func() bool { return true },
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newLiveRequest("/agent/chat/abc123"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLiveHandlerRequiresSessionID(t *testing.T) {
	h := LiveHandler{Registry: sessions.NewRegistry(10)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/agent/chat/", nil)
	req.SetPathValue("session_id", "  ")

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLiveHandlerRejectsDisallowedOrigin(t *testing.T) {
	h := LiveHandler{
		Config: config.Config{
			CORSAllowedOrigins: map[string]struct{}{"https://app.example": {}},
		},
		Registry: sessions.NewRegistry(10),
	}
	rec := httptest.NewRecorder()
	req := newLiveRequest("/agent/chat/abc123")
	req.Header.Set("Origin", "https://evil.example")

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLiveHandlerOriginAllowed(t *testing.T) {
	h := LiveHandler{Config: config.Config{
		CORSAllowedOrigins: map[string]struct{}{"https://app.example": {}},
	}}

	allowed := newLiveRequest("/agent/chat/abc123")
	allowed.Header.Set("Origin", "https://app.example")
	if !h.originAllowed(allowed) {
		t.Fatal("allowlisted origin rejected")
	}

	noOrigin := newLiveRequest("/agent/chat/abc123")
	if !h.originAllowed(noOrigin) {
		t.Fatal("non-browser request rejected")
	}

	open := LiveHandler{Config: config.Config{}}
	browser := newLiveRequest("/agent/chat/abc123")
	browser.Header.Set("Origin", "https://anything.example")
	if !open.originAllowed(browser) {
		t.Fatal("empty allowlist should admit any origin")
	}
}
