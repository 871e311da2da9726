package sessions

import (
	"context"
	"testing"
	"time"
)

func TestHistoryPromptRendering(t *testing.T) {
	h := NewHistory(0)
	h.AppendUser("what's the weather")
	h.AppendAssistant("I can't check live weather yet.")
	h.AppendUser("ok")

	want := "User : what's the weather\nAssistant : I can't check live weather yet.\nUser : ok"
	if got := h.Prompt(); got != want {
		t.Fatalf("Prompt() = %q, want %q", got, want)
	}
}

func TestHistoryEvictsOldestBeyondCap(t *testing.T) {
	h := NewHistory(3)
	h.AppendUser("one")
	h.AppendAssistant("two")
	h.AppendUser("three")
	h.AppendAssistant("four")

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	turns := h.Snapshot()
	if turns[0].Content != "two" || turns[2].Content != "four" {
		t.Fatalf("unexpected retained turns: %+v", turns)
	}
}

func TestHistoryCounts(t *testing.T) {
	h := NewHistory(0)
	h.AppendUser("a")
	h.AppendUser("b")
	h.AppendAssistant("c")

	users, assistants := h.Counts()
	if users != 2 || assistants != 1 {
		t.Fatalf("Counts() = (%d, %d), want (2, 1)", users, assistants)
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory(0)
	h.AppendUser("original")

	snap := h.Snapshot()
	snap[0].Content = "mutated"

	if got := h.Snapshot()[0].Content; got != "original" {
		t.Fatalf("snapshot mutation leaked into history: %q", got)
	}
}

func TestRegistryGetOrCreateReturnsSameHistory(t *testing.T) {
	r := NewRegistry(10)

	a := r.GetOrCreate("s1")
	a.AppendUser("hello")

	b := r.GetOrCreate("s1")
	if b.Len() != 1 {
		t.Fatalf("second lookup lost history: Len() = %d", b.Len())
	}
	if r.GetOrCreate("s2") == a {
		t.Fatal("distinct session ids share a history")
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
}

func TestTrackerRegisterUnregister(t *testing.T) {
	tr := NewTracker()
	unreg := tr.Register("c1", ConnHandle{})
	if tr.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", tr.Count())
	}
	unreg()
	unreg() // idempotent
	if tr.Count() != 0 {
		t.Fatalf("Count() after unregister = %d, want 0", tr.Count())
	}
}

func TestTrackerReregisterSameIDReplacesEntry(t *testing.T) {
	tr := NewTracker()
	firstCanceled := false
	tr.Register("c1", ConnHandle{Cancel: func() { firstCanceled = true }})
	tr.Register("c1", ConnHandle{})

	if tr.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", tr.Count())
	}
	tr.CancelAll()
	if firstCanceled {
		t.Fatal("replaced entry's Cancel still reachable")
	}
}

func TestTrackerNotifyAndCancelAll(t *testing.T) {
	tr := NewTracker()
	var notified []string
	canceled := 0
	tr.Register("c1", ConnHandle{
		Notify: func(text string) error {
			notified = append(notified, text)
			return nil
		},
		Cancel: func() { canceled++ },
	})
	tr.Register("c2", ConnHandle{
		Cancel: func() { canceled++ },
	})

	if sent := tr.NotifyAll("shutting down"); sent != 1 {
		t.Fatalf("NotifyAll sent = %d, want 1", sent)
	}
	if len(notified) != 1 || notified[0] != "shutting down" {
		t.Fatalf("unexpected notifications: %v", notified)
	}
	if got := tr.CancelAll(); got != 2 {
		t.Fatalf("CancelAll = %d, want 2", got)
	}
}

func TestTrackerWait(t *testing.T) {
	tr := NewTracker()
	unreg := tr.Register("c1", ConnHandle{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatal("Wait returned true with a live connection")
	}

	unreg()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if !tr.Wait(ctx2) {
		t.Fatal("Wait returned false after all connections unregistered")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	unreg := tr.Register("c1", ConnHandle{})
	unreg()
	if tr.Count() != 0 || tr.NotifyAll("x") != 0 || tr.CancelAll() != 0 {
		t.Fatal("nil tracker not inert")
	}
	if !tr.Wait(context.Background()) {
		t.Fatal("nil tracker Wait should return true")
	}
}
