// Package sessions holds process-wide live-session state: the
// conversation-history registry and the active-connection tracker.
package sessions

import (
	"strings"
	"sync"

	"github.com/voicewire/voicerelay/pkg/core/types"
)

// DefaultMaxTurns bounds per-session history retention. Oldest turns
// are evicted first.
const DefaultMaxTurns = 50

// History is one session's ordered conversation. It outlives the
// connection that created it so a reconnect with the same session id
// resumes the conversation.
type History struct {
	mu       sync.Mutex
	turns    []types.Turn
	maxTurns int
}

// NewHistory creates an empty history retaining at most maxTurns
// turns; maxTurns <= 0 uses DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// AppendUser records one user utterance.
func (h *History) AppendUser(text string) {
	h.append(types.Turn{Role: types.RoleUser, Content: text})
}

// AppendAssistant records one assistant reply.
func (h *History) AppendAssistant(text string) {
	h.append(types.Turn{Role: types.RoleAssistant, Content: text})
}

func (h *History) append(turn types.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	if overflow := len(h.turns) - h.maxTurns; overflow > 0 {
		h.turns = append(h.turns[:0], h.turns[overflow:]...)
	}
}

// Snapshot returns a copy of the retained turns in order.
func (h *History) Snapshot() []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Counts returns the number of retained user and assistant turns.
func (h *History) Counts() (users, assistants int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, turn := range h.turns {
		switch turn.Role {
		case types.RoleUser:
			users++
		case types.RoleAssistant:
			assistants++
		}
	}
	return users, assistants
}

// Prompt renders the retained conversation as role-labeled lines for
// the model, one turn per line with the role capitalized.
func (h *History) Prompt() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	for i, turn := range h.turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(capitalize(turn.Role))
		b.WriteString(" : ")
		b.WriteString(turn.Content)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Registry maps session id to conversation history. Session creation
// can race with the first frame of a reconnect, so lookup uses
// insert-if-absent semantics.
type Registry struct {
	mu        sync.Mutex
	histories map[string]*History
	maxTurns  int
}

// NewRegistry creates an empty registry whose histories retain at most
// maxTurns turns each.
func NewRegistry(maxTurns int) *Registry {
	return &Registry{
		histories: make(map[string]*History),
		maxTurns:  maxTurns,
	}
}

// GetOrCreate returns the history for sessionID, creating it if this
// is the first contact for that id.
func (r *Registry) GetOrCreate(sessionID string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histories[sessionID]; ok {
		return h
	}
	h := NewHistory(r.maxTurns)
	r.histories[sessionID] = h
	return h
}

// Count returns the number of known sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.histories)
}
