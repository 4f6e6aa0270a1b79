package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/realtime"
)

func identityCtx(ctx context.Context, tenantID, userID string) context.Context {
	return context.WithValue(ctx, identityKey, auth.Identity{
		UserID:   userID,
		TenantID: tenantID,
		Role:     auth.RoleViewer,
	})
}

func waitForConnections(t *testing.T, r *realtime.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ConnectionCount() never reached %d", want)
}

func TestEventsHandler_StreamReceivesMatchingEvents(t *testing.T) {
	registry := realtime.NewRegistry(time.Hour, nil)
	h := &eventsHandler{registry: registry}

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest("GET", "/api/v1/events?shard_type_ids=c_document", nil)
	r = r.WithContext(identityCtx(ctx, "t1", "u1"))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.stream(w, r)
	}()
	waitForConnections(t, registry, 1)

	match, err := realtime.NewEvent("updated", "t1", "c_document", "s1", map[string]string{"title": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	registry.Dispatch(match)

	skip, err := realtime.NewEvent("updated", "t1", "c_task", "s2", nil)
	if err != nil {
		t.Fatal(err)
	}
	registry.Dispatch(skip)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, `"connection_id"`) {
		t.Error("stream did not announce a connection ID")
	}
	if !strings.Contains(body, `"shard_id":"s1"`) {
		t.Errorf("stream missing matching event, body:\n%s", body)
	}
	if strings.Contains(body, `"shard_id":"s2"`) {
		t.Errorf("stream delivered a filtered-out event, body:\n%s", body)
	}
	if !strings.Contains(body, "event: updated\n") {
		t.Error("frame missing event: line")
	}
	if registry.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d after disconnect, want 0", registry.ConnectionCount())
	}
}

func TestEventsHandler_SubscriptionPatch(t *testing.T) {
	registry := realtime.NewRegistry(time.Hour, nil)
	h := &eventsHandler{registry: registry}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r = r.WithContext(identityCtx(ctx, "t1", "u1"))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.stream(w, r)
	}()
	waitForConnections(t, registry, 1)

	connID := registry.ConnectionsByTenant("t1")[0]

	pw := httptest.NewRecorder()
	pr := httptest.NewRequest("PATCH", "/api/v1/events/"+connID+"/subscription",
		strings.NewReader(`{"event_types":["deleted"]}`))
	pr = pr.WithContext(identityCtx(context.Background(), "t1", "u1"))
	pr.SetPathValue("id", connID)
	h.patchSubscription(pw, pr)

	if pw.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", pw.Code, pw.Body.String())
	}
	f, err := registry.Subscription(connID)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.EventTypes) != 1 || f.EventTypes[0] != "deleted" {
		t.Errorf("filter = %+v, want event_types [deleted]", f)
	}

	// A caller from another tenant must not see or touch the connection.
	fw := httptest.NewRecorder()
	fr := httptest.NewRequest("GET", "/api/v1/events/"+connID+"/subscription", nil)
	fr = fr.WithContext(identityCtx(context.Background(), "t2", "u9"))
	fr.SetPathValue("id", connID)
	h.getSubscription(fw, fr)
	if fw.Code != http.StatusNotFound {
		t.Errorf("cross-tenant subscription read status = %d, want 404", fw.Code)
	}

	cancel()
	<-done
}

func TestEventsHandler_SubscriptionUnknownConnection(t *testing.T) {
	registry := realtime.NewRegistry(time.Hour, nil)
	h := &eventsHandler{registry: registry}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/events/nope/subscription", nil)
	r = r.WithContext(identityCtx(context.Background(), "t1", "u1"))
	r.SetPathValue("id", "nope")
	h.getSubscription(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSplitParam(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a,b,c", 3},
		{" a , ,b ", 2},
	}
	for _, tc := range cases {
		if got := splitParam(tc.in); len(got) != tc.want {
			t.Errorf("splitParam(%q) = %v, want %d parts", tc.in, got, tc.want)
		}
	}
}
