package session

import "testing"

func TestAggregatorPartials(t *testing.T) {
	var agg turnAggregator

	if _, ok := agg.Partial("   "); ok {
		t.Fatal("whitespace partial should be dropped")
	}
	text, ok := agg.Partial("  hello th ")
	if !ok || text != "hello th" {
		t.Fatalf("Partial = (%q, %v)", text, ok)
	}
}

func TestAggregatorFinalCommits(t *testing.T) {
	var agg turnAggregator

	agg.Partial("hello")
	utterance, ok := agg.Final(" hello there ")
	if !ok || utterance != "hello there" {
		t.Fatalf("Final = (%q, %v)", utterance, ok)
	}
}

func TestAggregatorWhitespaceFinalDiscarded(t *testing.T) {
	var agg turnAggregator

	agg.Partial("hm")
	if _, ok := agg.Final("  \n "); ok {
		t.Fatal("whitespace final should not commit a turn")
	}
	// The discarded final still resets partial state.
	if agg.lastPartial != "" {
		t.Fatalf("lastPartial = %q, want empty", agg.lastPartial)
	}
}

func TestAggregatorFinalsNeverMerge(t *testing.T) {
	var agg turnAggregator

	first, _ := agg.Final("first thought")
	second, _ := agg.Final("second thought")
	if first != "first thought" || second != "second thought" {
		t.Fatalf("finals merged: %q, %q", first, second)
	}
}
