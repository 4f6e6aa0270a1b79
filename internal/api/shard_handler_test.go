package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

type capturePublisher struct {
	events []realtime.Event
}

func (p *capturePublisher) Publish(_ context.Context, e realtime.Event) {
	p.events = append(p.events, e)
}

type testEnv struct {
	store      store.Store
	events     *capturePublisher
	tenant     *store.Tenant
	user       *store.User
	collection *store.Collection
	shardType  *store.ShardType
	shards     *shardHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	tenant := &store.Tenant{Name: "Acme", Slug: "acme"}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	user := &store.User{TenantID: tenant.ID, Email: "dev@acme.test", DisplayName: "Dev", Role: "editor"}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	col := &store.Collection{TenantID: tenant.ID, Name: "Deals", CreatedBy: user.ID}
	if err := db.CreateCollection(ctx, col); err != nil {
		t.Fatal(err)
	}
	st := &store.ShardType{TenantID: tenant.ID, Key: "c_document", Name: "Document"}
	if err := db.CreateShardType(ctx, st); err != nil {
		t.Fatal(err)
	}

	events := &capturePublisher{}
	return &testEnv{
		store:      db,
		events:     events,
		tenant:     tenant,
		user:       user,
		collection: col,
		shardType:  st,
		shards:     &shardHandler{store: db, events: events},
	}
}

// request builds an authenticated request the way authMiddleware would.
func (e *testEnv) request(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(r.Context(), identityKey, auth.Identity{
		UserID:   e.user.ID,
		TenantID: e.tenant.ID,
		Role:     auth.RoleEditor,
	})
	return r.WithContext(ctx)
}

func (e *testEnv) createShard(t *testing.T, title string) *store.Shard {
	t.Helper()
	s := &store.Shard{
		TenantID:     e.tenant.ID,
		CollectionID: e.collection.ID,
		ShardTypeID:  e.shardType.ID,
		Title:        title,
		Content:      json.RawMessage(`{"body":"x"}`),
		CreatedBy:    e.user.ID,
		UpdatedBy:    e.user.ID,
	}
	if err := e.store.CreateShard(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestShardHandler_CreatePublishesEvent(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	r := env.request("POST", "/api/v1/shards", map[string]any{
		"collection_id": env.collection.ID,
		"shard_type_id": env.shardType.ID,
		"title":         "quarterly report",
	})
	env.shards.create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got store.Shard
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
	if got.CreatedBy != env.user.ID {
		t.Errorf("CreatedBy = %q, want %q", got.CreatedBy, env.user.ID)
	}

	if len(env.events.events) != 1 {
		t.Fatalf("published %d events, want 1", len(env.events.events))
	}
	e := env.events.events[0]
	if e.Type != "created" {
		t.Errorf("event type = %q, want created", e.Type)
	}
	if e.ShardTypeID != "c_document" {
		t.Errorf("event shard type = %q, want the type key c_document", e.ShardTypeID)
	}
	if e.TenantID != env.tenant.ID {
		t.Errorf("event tenant = %q, want %q", e.TenantID, env.tenant.ID)
	}
}

func TestShardHandler_UpdateSnapshotsRevision(t *testing.T) {
	env := newTestEnv(t)
	s := env.createShard(t, "v1 title")

	w := httptest.NewRecorder()
	r := env.request("PUT", "/api/v1/shards/"+s.ID, map[string]any{
		"title":    "v2 title",
		"revision": 1,
	})
	r.SetPathValue("id", s.ID)
	env.shards.update(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got store.Shard
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
	if got.Title != "v2 title" {
		t.Errorf("Title = %q", got.Title)
	}

	revs, err := env.store.ListRevisions(context.Background(), env.tenant.ID, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 {
		t.Fatalf("got %d revisions, want 1", len(revs))
	}
	if revs[0].Revision != 1 || revs[0].Title != "v1 title" {
		t.Errorf("snapshot = rev %d title %q, want rev 1 title \"v1 title\"", revs[0].Revision, revs[0].Title)
	}
}

func TestShardHandler_StaleRevisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	s := env.createShard(t, "original")

	// First writer wins.
	w := httptest.NewRecorder()
	r := env.request("PUT", "/api/v1/shards/"+s.ID, map[string]any{"title": "first", "revision": 1})
	r.SetPathValue("id", s.ID)
	env.shards.update(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("first update status = %d", w.Code)
	}

	// Second writer still holds revision 1.
	w = httptest.NewRecorder()
	r = env.request("PUT", "/api/v1/shards/"+s.ID, map[string]any{"title": "second", "revision": 1})
	r.SetPathValue("id", s.ID)
	env.shards.update(w, r)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", w.Code)
	}

	got, err := env.store.GetShard(context.Background(), env.tenant.ID, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "first" {
		t.Errorf("Title = %q, conflicting write must not land", got.Title)
	}
}

func TestShardHandler_DeletePublishesAndRemoves(t *testing.T) {
	env := newTestEnv(t)
	s := env.createShard(t, "doomed")

	w := httptest.NewRecorder()
	r := env.request("DELETE", "/api/v1/shards/"+s.ID, nil)
	r.SetPathValue("id", s.ID)
	env.shards.delete(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if _, err := env.store.GetShard(context.Background(), env.tenant.ID, s.ID); err == nil {
		t.Error("shard still present after delete")
	}
	if len(env.events.events) != 1 || env.events.events[0].Type != "deleted" {
		t.Fatalf("events = %+v, want one deleted event", env.events.events)
	}
}

func TestShardHandler_RestoreRevision(t *testing.T) {
	env := newTestEnv(t)
	s := env.createShard(t, "first draft")

	for i := 2; i <= 3; i++ {
		w := httptest.NewRecorder()
		r := env.request("PUT", "/api/v1/shards/"+s.ID, map[string]any{
			"title":    fmt.Sprintf("draft %d", i),
			"revision": i - 1,
		})
		r.SetPathValue("id", s.ID)
		env.shards.update(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("update to rev %d: status %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r := env.request("POST", "/api/v1/shards/"+s.ID+"/revisions/1/restore", nil)
	r.SetPathValue("id", s.ID)
	r.SetPathValue("rev", "1")
	env.shards.restoreRevision(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", w.Code, w.Body.String())
	}
	var got store.Shard
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "first draft" {
		t.Errorf("Title = %q, want the restored snapshot title", got.Title)
	}
	if got.Revision != 4 {
		t.Errorf("Revision = %d, a restore is itself a versioned update", got.Revision)
	}
}

func TestShardHandler_ListFilters(t *testing.T) {
	env := newTestEnv(t)
	env.createShard(t, "alpha report")
	env.createShard(t, "beta notes")

	w := httptest.NewRecorder()
	r := env.request("GET", "/api/v1/shards?search=alpha", nil)
	env.shards.list(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Items []store.Shard `json:"items"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("total = %d items = %d, want 1 match", resp.Total, len(resp.Items))
	}
	if resp.Items[0].Title != "alpha report" {
		t.Errorf("Title = %q", resp.Items[0].Title)
	}
}
