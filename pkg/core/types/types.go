// Package types holds the shared conversation data model.
package types

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in a conversation: a user utterance or an
// assistant reply. Turns are immutable once appended to a history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Story is one news item surfaced to the client.
type Story struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
