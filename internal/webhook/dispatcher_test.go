package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEncryptor(t *testing.T) *secrets.AgeEncryptor {
	t.Helper()
	enc, err := secrets.NewEphemeral()
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

func createTenantAndWebhook(t *testing.T, s store.Store, enc *secrets.AgeEncryptor, url, secret string, eventTypes []string) *store.Webhook {
	t.Helper()
	tenant := &store.Tenant{Name: "Acme", Slug: "acme"}
	if err := s.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}

	w := &store.Webhook{
		TenantID: tenant.ID,
		Name:     "test hook",
		URL:      url,
		Active:   true,
	}
	if secret != "" {
		sealed, err := enc.Encrypt([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		w.EncryptedSecret = sealed
	}
	if eventTypes != nil {
		raw, _ := json.Marshal(eventTypes)
		w.EventTypes = raw
	}
	if err := s.CreateWebhook(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	return w
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForDeliveries(t *testing.T, s store.Store, tenantID, webhookID string, want int) []store.WebhookDelivery {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dels, err := s.ListWebhookDeliveries(context.Background(), tenantID, webhookID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(dels) >= want {
			done := true
			for _, d := range dels {
				if d.Status == "pending" {
					done = false
				}
			}
			if done {
				return dels
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for webhook deliveries")
	return nil
}

func TestDispatcher_DeliversSignedEvent(t *testing.T) {
	s := newTestStore(t)
	enc := newTestEncryptor(t)

	var gotBody atomic.Value
	var gotSig atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		gotSig.Store(r.Header.Get("X-Shardbase-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := createTenantAndWebhook(t, s, enc, srv.URL, "hooksecret", nil)
	d := NewDispatcher(s, enc, nil, Options{Workers: 1})
	startDispatcher(t, d)

	evt, err := realtime.NewEvent("updated", hook.TenantID, "c_document", "d1", map[string]string{"title": "x"})
	if err != nil {
		t.Fatal(err)
	}
	d.Publish(context.Background(), evt)

	dels := waitForDeliveries(t, s, hook.TenantID, hook.ID, 1)
	if dels[0].Status != "delivered" {
		t.Fatalf("delivery status = %s (%s)", dels[0].Status, dels[0].LastError)
	}
	if dels[0].LastCode != http.StatusOK {
		t.Fatalf("last code = %d", dels[0].LastCode)
	}

	body := gotBody.Load().([]byte)
	if sig := gotSig.Load().(string); sig != Signature("hooksecret", body) {
		t.Fatalf("signature mismatch: %s", sig)
	}
	var decoded realtime.Event
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "updated" || decoded.ShardID != "d1" {
		t.Fatalf("payload mismatch: %+v", decoded)
	}
}

func TestDispatcher_FilterSkipsNonMatching(t *testing.T) {
	s := newTestStore(t)
	enc := newTestEncryptor(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	hook := createTenantAndWebhook(t, s, enc, srv.URL, "", []string{"deleted"})
	d := NewDispatcher(s, enc, nil, Options{Workers: 1})
	startDispatcher(t, d)

	d.Publish(context.Background(), realtime.Event{Type: "updated", TenantID: hook.TenantID})
	d.Publish(context.Background(), realtime.Event{Type: "deleted", TenantID: hook.TenantID})

	dels := waitForDeliveries(t, s, hook.TenantID, hook.ID, 1)
	if len(dels) != 1 {
		t.Fatalf("deliveries = %d; want 1 (filter must skip updated)", len(dels))
	}
	if dels[0].EventType != "deleted" {
		t.Fatalf("delivered event type = %s", dels[0].EventType)
	}
	if hits.Load() != 1 {
		t.Fatalf("endpoint hits = %d; want 1", hits.Load())
	}
}

func TestDispatcher_RetriesAndFails(t *testing.T) {
	s := newTestStore(t)
	enc := newTestEncryptor(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := createTenantAndWebhook(t, s, enc, srv.URL, "", nil)
	d := NewDispatcher(s, enc, nil, Options{
		Workers:     1,
		MaxAttempts: 2,
		Backoff:     10 * time.Millisecond,
	})
	startDispatcher(t, d)

	d.Publish(context.Background(), realtime.Event{Type: "updated", TenantID: hook.TenantID})

	dels := waitForDeliveries(t, s, hook.TenantID, hook.ID, 1)
	if dels[0].Status != "failed" {
		t.Fatalf("delivery status = %s; want failed", dels[0].Status)
	}
	if dels[0].Attempts != 2 {
		t.Fatalf("attempts = %d; want 2", dels[0].Attempts)
	}
	if hits.Load() != 2 {
		t.Fatalf("endpoint hits = %d; want 2", hits.Load())
	}
}

func TestDispatcher_TransformRewritesPayload(t *testing.T) {
	s := newTestStore(t)
	enc := newTestEncryptor(t)

	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
	}))
	defer srv.Close()

	hook := createTenantAndWebhook(t, s, enc, srv.URL, "", nil)
	hook.TransformScript = `function transform(event) { return { text: "shard " + event.shard_id + " changed" }; }`
	if err := s.UpdateWebhook(context.Background(), hook); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(s, enc, nil, Options{Workers: 1})
	startDispatcher(t, d)

	d.Publish(context.Background(), realtime.Event{Type: "updated", TenantID: hook.TenantID, ShardID: "d7"})

	dels := waitForDeliveries(t, s, hook.TenantID, hook.ID, 1)
	if dels[0].Status != "delivered" {
		t.Fatalf("delivery status = %s (%s)", dels[0].Status, dels[0].LastError)
	}
	if string(gotBody.Load().([]byte)) != `{"text":"shard d7 changed"}` {
		t.Fatalf("transformed body = %s", gotBody.Load().([]byte))
	}
}
