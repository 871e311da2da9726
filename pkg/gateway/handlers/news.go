package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/voicewire/voicerelay/pkg/core/types"
)

// NewsFetcher is satisfied by the hackernews client.
type NewsFetcher interface {
	Fetch(ctx context.Context, limit int, randomize bool) ([]types.Story, error)
}

// NewsHandler serves GET /news/tech: the same headline feed the voice
// pipeline reads, exposed for text clients.
type NewsHandler struct {
	Logger       *slog.Logger
	Fetcher      NewsFetcher
	DefaultLimit int
	MaxLimit     int
}

type newsResponse struct {
	News []types.Story `json:"news"`
}

func (h NewsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := h.DefaultLimit
	if limit <= 0 {
		limit = 5
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if h.MaxLimit > 0 && limit > h.MaxLimit {
		limit = h.MaxLimit
	}

	randomize := true
	if raw := strings.TrimSpace(r.URL.Query().Get("randomize")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "randomize must be a boolean")
			return
		}
		randomize = b
	}

	stories, err := h.Fetcher.Fetch(r.Context(), limit, randomize)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("news fetch failed", "error", err)
		}
		writeError(w, http.StatusBadGateway, "failed to fetch headlines")
		return
	}
	if stories == nil {
		stories = []types.Story{}
	}
	writeJSON(w, http.StatusOK, newsResponse{News: stories})
}
