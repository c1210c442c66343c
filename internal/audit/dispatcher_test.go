package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

// heldSink blocks every Emit until release is closed or ctx ends, then records
// the event type. entered receives once per Emit call.
type heldSink struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	types   []string
}

func newHeldSink() *heldSink {
	return &heldSink{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *heldSink) Emit(ctx context.Context, e Event) {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return
	}
	s.mu.Lock()
	s.types = append(s.types, e.EventType)
	s.mu.Unlock()
}

func (s *heldSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	// A nil dispatcher swallows every call.
	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports no drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, zap.New(core))
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	d.Emit(context.Background(), Event{EventType: "e4"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
	if n := logs.FilterMessage("audit buffer full, dropping events").Len(); n != 1 {
		t.Fatalf("expected exactly one drop warning, got %d", n)
	}
}

func TestDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherBlockedEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{EventType: "e3"})
	if time.Since(start) > time.Second {
		t.Fatal("emit ignored context cancellation")
	}
}

func TestDispatcherNeverDropsCriticalEvents(t *testing.T) {
	sink := newHeldSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"refresh_reuse_detected"},
	}, sink, nil)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	<-sink.entered
	d.Emit(context.Background(), Event{EventType: "refresh_success"})
	d.Emit(context.Background(), Event{EventType: "logout"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the ordinary event to be dropped, dropped=%d", d.Dropped())
	}

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "refresh_reuse_detected"})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("critical event must wait for buffer space instead of dropping")
	case <-time.After(100 * time.Millisecond):
	}

	close(sink.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("critical emit never completed")
	}
	d.Close()

	got := sink.seen()
	want := []string{"login_success", "refresh_success", "refresh_reuse_detected"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if d.Dropped() != 1 {
		t.Fatalf("critical event counted as dropped: %d", d.Dropped())
	}
}

func TestDispatcherCloseGivesUpOnStuckSink(t *testing.T) {
	sink := newHeldSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DrainTimeout: 50 * time.Millisecond}, sink, nil)
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "logout"})

	start := time.Now()
	d.Close()
	if time.Since(start) > 2*time.Second {
		t.Fatal("Close waited past the drain timeout")
	}
	if len(sink.seen()) != 0 {
		t.Fatalf("a stuck sink must not record events, got %v", sink.seen())
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, &countingSink{}, nil)

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: "login_success",
		UserID:    "u1",
		TokenID:   "jti-1",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{EventType: "logout_session"})

	lines := bytes.Split(bytes.TrimSpace(buf.buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal(lines[0], &decoded); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if decoded["user_id"] != "u1" || decoded["jti"] != "jti-1" {
		t.Fatalf("unexpected fields %v", decoded)
	}
	if _, ok := decoded["ip"]; ok {
		t.Fatal("empty ip must be omitted")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", Error: "refresh_reuse", SessionID: "s1"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["session_id"] != "s1" {
		t.Fatalf("missing session_id field: %v", entries[1].ContextMap())
	}
}
