package session

import "strings"

// turnAggregator turns the transcript delta stream into committed
// utterances. Partials are forwarded as they arrive; a final commits
// one utterance on its own, never merged with an earlier final.
type turnAggregator struct {
	lastPartial string
}

// Partial records a partial transcript and reports whether it should
// be forwarded to the client. Empty partials are dropped.
func (a *turnAggregator) Partial(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	a.lastPartial = trimmed
	return trimmed, true
}

// Final commits an utterance. Whitespace-only finals are discarded
// and produce no turn. The pending partial is reset either way.
func (a *turnAggregator) Final(text string) (string, bool) {
	a.lastPartial = ""
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
