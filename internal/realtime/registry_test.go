package realtime

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSink records frames and can be armed to fail writes.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   error
}

func (s *fakeSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return ""
	}
	return string(s.frames[len(s.frames)-1])
}

func newTestRegistry() *Registry {
	return NewRegistry(time.Hour, nil)
}

func TestRegistry_TenantScoping(t *testing.T) {
	r := newTestRegistry()
	a, b := &fakeSink{}, &fakeSink{}
	if err := r.Register("a", "t1", "u1", a, Filter{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("b", "t2", "u2", b, Filter{}); err != nil {
		t.Fatal(err)
	}

	r.Dispatch(Event{Type: "updated", TenantID: "t1", ShardID: "d1"})

	if a.count() != 1 {
		t.Fatalf("t1 connection got %d frames, want 1", a.count())
	}
	if b.count() != 0 {
		t.Fatalf("t2 connection got %d frames, want 0 (cross-tenant)", b.count())
	}
}

func TestRegistry_FilterMatching(t *testing.T) {
	// Scenario from the subscription design: A filters on c_document,
	// B subscribes to everything in the tenant.
	r := newTestRegistry()
	a, b := &fakeSink{}, &fakeSink{}
	if err := r.Register("A", "t1", "u1", a, Filter{ShardTypeIDs: []string{"c_document"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("B", "t1", "u2", b, Filter{}); err != nil {
		t.Fatal(err)
	}

	docEvent := Event{Type: "updated", TenantID: "t1", ShardTypeID: "c_document", ShardID: "d1"}
	r.Dispatch(docEvent)
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("doc event: got A=%d B=%d, want both 1", a.count(), b.count())
	}

	r.Dispatch(Event{Type: "updated", TenantID: "t1", ShardTypeID: "c_task", ShardID: "x1"})
	if a.count() != 1 {
		t.Fatalf("task event delivered to A despite filter (count=%d)", a.count())
	}
	if b.count() != 2 {
		t.Fatalf("task event not delivered to B (count=%d)", b.count())
	}

	r.Dispatch(Event{Type: "updated", TenantID: "t2", ShardTypeID: "c_document", ShardID: "d1"})
	if a.count() != 1 || b.count() != 2 {
		t.Fatalf("cross-tenant event leaked: A=%d B=%d", a.count(), b.count())
	}

	r.Unregister("A")
	r.Dispatch(docEvent)
	if a.count() != 1 {
		t.Fatalf("unregistered connection still received a frame")
	}
	if b.count() != 3 {
		t.Fatalf("B missed delivery after A unregistered (count=%d)", b.count())
	}
	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() = %d, want 1", got)
	}
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("a", "t1", "u1", &fakeSink{}, Filter{}); err != nil {
		t.Fatal(err)
	}
	err := r.Register("a", "t1", "u2", &fakeSink{}, Filter{})
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("duplicate register: got %v, want ErrDuplicateConnection", err)
	}
	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() = %d, want 1", got)
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("a", "t1", "u1", &fakeSink{}, Filter{}); err != nil {
		t.Fatal(err)
	}
	r.Unregister("a")
	r.Unregister("a") // second call must be a silent no-op
	r.Unregister("never-existed")
	if got := r.ConnectionCount(); got != 0 {
		t.Fatalf("ConnectionCount() = %d, want 0", got)
	}
}

func TestRegistry_WriteFailureRemovesConnectionOnce(t *testing.T) {
	r := newTestRegistry()
	broken := &fakeSink{fail: errors.New("broken pipe")}
	healthy := &fakeSink{}
	if err := r.Register("bad", "t1", "u1", broken, Filter{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("good", "t1", "u2", healthy, Filter{}); err != nil {
		t.Fatal(err)
	}

	r.Dispatch(Event{Type: "updated", TenantID: "t1"})

	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() after write failure = %d, want 1", got)
	}
	if healthy.count() != 1 {
		t.Fatalf("healthy connection unaffected by peer failure: got %d frames", healthy.count())
	}

	// Dispatching again must not attempt the removed connection.
	r.Dispatch(Event{Type: "updated", TenantID: "t1"})
	if healthy.count() != 2 {
		t.Fatalf("second dispatch: got %d frames, want 2", healthy.count())
	}
	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("connection removed more than once: count = %d", got)
	}
}

func TestRegistry_UpdateSubscription(t *testing.T) {
	r := newTestRegistry()
	sink := &fakeSink{}
	if err := r.Register("a", "t1", "u1", sink, Filter{}); err != nil {
		t.Fatal(err)
	}

	types := []string{"deleted"}
	if err := r.UpdateSubscription("a", FilterPatch{EventTypes: &types}); err != nil {
		t.Fatal(err)
	}

	r.Dispatch(Event{Type: "updated", TenantID: "t1"})
	if sink.count() != 0 {
		t.Fatalf("event delivered despite narrowed subscription")
	}
	r.Dispatch(Event{Type: "deleted", TenantID: "t1"})
	if sink.count() != 1 {
		t.Fatalf("matching event not delivered after subscription update")
	}

	err := r.UpdateSubscription("missing", FilterPatch{})
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("update on unknown connection: got %v, want ErrUnknownConnection", err)
	}
}

func TestRegistry_ConnectionsByTenant(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"c", "a", "b"} {
		if err := r.Register(id, "t1", "u", &fakeSink{}, Filter{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Register("other", "t2", "u", &fakeSink{}, Filter{}); err != nil {
		t.Fatal(err)
	}

	got := r.ConnectionsByTenant("t1")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("ConnectionsByTenant(t1) = %v, want [a b c]", got)
	}
	if got := r.ConnectionsByTenant("empty"); len(got) != 0 {
		t.Fatalf("ConnectionsByTenant(empty) = %v, want none", got)
	}
}

func TestRegistry_FrameFormat(t *testing.T) {
	r := newTestRegistry()
	sink := &fakeSink{}
	if err := r.Register("a", "t1", "u1", sink, Filter{}); err != nil {
		t.Fatal(err)
	}

	evt, err := NewEvent("updated", "t1", "c_document", "d1", map[string]string{"title": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	r.Dispatch(evt)

	frame := sink.last()
	if !strings.HasPrefix(frame, "event: updated\n") {
		t.Fatalf("frame missing event line: %q", frame)
	}
	if !strings.Contains(frame, `"type":"updated"`) {
		t.Fatalf("frame data missing type field: %q", frame)
	}
	if !strings.Contains(frame, `"payload":{"title":"hello"}`) {
		t.Fatalf("frame data missing payload field: %q", frame)
	}
	if !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("frame not terminated by blank line: %q", frame)
	}
}

func TestRegistry_HeartbeatDropsDeadConnections(t *testing.T) {
	r := newTestRegistry()
	broken := &fakeSink{fail: errors.New("write timeout")}
	healthy := &fakeSink{}
	if err := r.Register("bad", "t1", "u1", broken, Filter{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("good", "t1", "u2", healthy, Filter{}); err != nil {
		t.Fatal(err)
	}

	r.heartbeat()

	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() after heartbeat = %d, want 1", got)
	}
	if healthy.count() != 1 {
		t.Fatalf("healthy connection got %d heartbeat frames, want 1", healthy.count())
	}
	if healthy.last() != ":\n\n" {
		t.Fatalf("heartbeat frame = %q, want comment frame", healthy.last())
	}
}

func TestRegistry_OrderingPerConnection(t *testing.T) {
	r := newTestRegistry()
	sink := &fakeSink{}
	if err := r.Register("a", "t1", "u1", sink, Filter{}); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		r.Dispatch(Event{Type: "updated", TenantID: "t1", ShardID: id})
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(sink.frames))
	}
	for i, want := range []string{"s1", "s2", "s3", "s4"} {
		if !strings.Contains(string(sink.frames[i]), `"shard_id":"`+want+`"`) {
			t.Fatalf("frame %d out of order: %s", i, sink.frames[i])
		}
	}
}
