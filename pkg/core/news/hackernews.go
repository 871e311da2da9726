// Package news fetches current headlines from Hacker News.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/voicewire/voicerelay/pkg/core/types"
)

const (
	// DefaultBaseURL is the public Hacker News Firebase API.
	DefaultBaseURL = "https://hacker-news.firebaseio.com"

	// topStoryPool bounds selection to the front of the top-stories
	// list so stale items are never surfaced.
	topStoryPool = 50
)

// Client fetches top stories from the Hacker News API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Hacker News client against the public API.
func NewClient() *Client {
	return NewClientWith(DefaultBaseURL, nil)
}

// NewClientWith creates a client against a specific base URL, useful
// for tests. A nil httpClient falls back to a default client.
func NewClientWith(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type hnItem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Fetch returns up to limit current stories. With randomize set, the
// stories are sampled from the top of the front page rather than
// always being the same leading entries. Individual item failures are
// skipped; Fetch fails only when the story list itself is unavailable.
func (c *Client) Fetch(ctx context.Context, limit int, randomize bool) ([]types.Story, error) {
	if limit <= 0 {
		return nil, nil
	}

	var ids []int64
	if err := c.getJSON(ctx, c.baseURL+"/v0/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if len(ids) > topStoryPool {
		ids = ids[:topStoryPool]
	}
	if randomize {
		shuffled := make([]int64, len(ids))
		copy(shuffled, ids)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		ids = shuffled
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	stories := make([]types.Story, 0, len(ids))
	for _, id := range ids {
		var item hnItem
		if err := c.getJSON(ctx, fmt.Sprintf("%s/v0/item/%d.json", c.baseURL, id), &item); err != nil {
			continue
		}
		if item.Title == "" {
			continue
		}
		url := item.URL
		if url == "" {
			url = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", id)
		}
		stories = append(stories, types.Story{Title: item.Title, URL: url})
	}
	return stories, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hackernews request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hackernews error %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
