package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeWS struct {
	mu       sync.Mutex
	messages []string
	closed   bool
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.TextMessage {
		f.messages = append(f.messages, string(data))
	}
	return nil
}

func (f *fakeWS) WriteControl(int, []byte, time.Time) error { return nil }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWS) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}

func TestWriterDrainsBothChannelsAndExits(t *testing.T) {
	ws := &fakeWS{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)

	normal <- outboundFrame{payload: []byte(`{"n":1}`)}
	normal <- outboundFrame{payload: []byte(`{"n":2}`)}
	close(normal)
	close(priority)

	w := outboundWriter{ws: ws, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := ws.snapshot()
	if len(got) != 2 || got[0] != `{"n":1}` || got[1] != `{"n":2}` {
		t.Fatalf("unexpected writes: %v", got)
	}
}

func TestWriterPriorityBeforeQueuedNormal(t *testing.T) {
	ws := &fakeWS{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)

	priority <- outboundFrame{payload: []byte(`{"p":1}`)}
	normal <- outboundFrame{payload: []byte(`{"n":1}`)}
	close(priority)
	close(normal)

	w := outboundWriter{ws: ws, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := ws.snapshot()
	if len(got) != 2 || got[0] != `{"p":1}` {
		t.Fatalf("priority frame not written first: %v", got)
	}
}

func TestWriterFlushesPriorityOnShutdown(t *testing.T) {
	ws := &fakeWS{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	priority := make(chan outboundFrame, 4)
	priority <- outboundFrame{payload: []byte(`{"fatal":true}`)}

	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		priority: priority,
		normal:   make(chan outboundFrame),
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := ws.snapshot()
	if len(got) != 1 || got[0] != `{"fatal":true}` {
		t.Fatalf("priority frame lost on shutdown: %v", got)
	}
	if !ws.closed {
		t.Fatal("websocket not closed on shutdown")
	}
}
