package sessions

import (
	"context"
	"sync"
)

// ConnHandle is how the tracker reaches a live connection during
// shutdown. Notify delivers a final error event; Cancel tears the
// connection down.
type ConnHandle struct {
	Cancel func()
	Notify func(text string) error
}

// Tracker follows every live websocket connection so shutdown can
// notify, drain, and as a last resort cancel them. Connections are
// keyed by connection id, not session id, so a reconnect under the
// same session does not evict an older connection's entry.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]*trackedConn
	wg    sync.WaitGroup
}

type trackedConn struct {
	handle ConnHandle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]*trackedConn)}
}

// Register adds a connection and returns its unregister func. The
// unregister func is idempotent.
func (t *Tracker) Register(connID string, h ConnHandle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedConn{handle: h}

	t.mu.Lock()
	if t.conns == nil {
		t.conns = make(map[string]*trackedConn)
	}
	old := t.conns[connID]
	t.conns[connID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(connID, old)
	}

	return func() { t.unregister(connID, entry) }
}

func (t *Tracker) unregister(connID string, entry *trackedConn) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.conns != nil && t.conns[connID] == entry {
			delete(t.conns, connID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// NotifyAll sends text to every live connection. Send failures are
// ignored; the connection is about to go away regardless.
func (t *Tracker) NotifyAll(text string) (sent int) {
	if t == nil {
		return 0
	}

	var notifies []func(text string) error
	t.mu.Lock()
	for _, entry := range t.conns {
		if entry == nil || entry.handle.Notify == nil {
			continue
		}
		notifies = append(notifies, entry.handle.Notify)
	}
	t.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(text)
		sent++
	}
	return sent
}

// CancelAll tears down every live connection.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.conns {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered connection has unregistered or
// ctx expires. It reports whether the drain completed.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
