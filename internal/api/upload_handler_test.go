package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/store"
)

func newUploadEnv(t *testing.T) (*testEnv, *uploadHandler) {
	t.Helper()
	env := newTestEnv(t)
	h := &uploadHandler{store: env.store, dir: t.TempDir()}
	return env, h
}

func (e *testEnv) openUpload(t *testing.T, declared int64) *store.UploadSession {
	t.Helper()
	shard := e.createShard(t, "attachment host")
	u := &store.UploadSession{
		TenantID:     e.tenant.ID,
		ShardID:      shard.ID,
		FileName:     "report.pdf",
		DeclaredSize: declared,
		Status:       "open",
		CreatedBy:    e.user.ID,
	}
	if err := e.store.CreateUploadSession(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) chunkRequest(sessionID string, body []byte) *http.Request {
	r := httptest.NewRequest("PUT", "/api/v1/uploads/"+sessionID+"/chunk", bytes.NewReader(body))
	r.SetPathValue("id", sessionID)
	ctx := context.WithValue(r.Context(), identityKey, auth.Identity{
		UserID:   e.user.ID,
		TenantID: e.tenant.ID,
		Role:     auth.RoleEditor,
	})
	return r.WithContext(ctx)
}

func TestUploadHandler_AppendAndComplete(t *testing.T) {
	env, h := newUploadEnv(t)
	data := []byte("chunked upload payload")
	u := env.openUpload(t, int64(len(data)))

	w := httptest.NewRecorder()
	h.append(w, env.chunkRequest(u.ID, data))
	if w.Code != http.StatusOK {
		t.Fatalf("append status = %d, body %s", w.Code, w.Body.String())
	}

	got, err := env.store.GetUploadSession(context.Background(), env.tenant.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceivedBytes != int64(len(data)) {
		t.Errorf("ReceivedBytes = %d, want %d", got.ReceivedBytes, len(data))
	}
	blob, err := os.ReadFile(h.blobPath(u.ID))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, data) {
		t.Errorf("blob = %q, want %q", blob, data)
	}

	w = httptest.NewRecorder()
	r := env.chunkRequest(u.ID, nil)
	h.complete(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", w.Code, w.Body.String())
	}
	got, err = env.store.GetUploadSession(context.Background(), env.tenant.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "complete" {
		t.Errorf("Status = %q, want complete", got.Status)
	}
}

func TestUploadHandler_OversizeChunkRejected(t *testing.T) {
	env, h := newUploadEnv(t)
	u := env.openUpload(t, 0)

	w := httptest.NewRecorder()
	h.append(w, env.chunkRequest(u.ID, bytes.Repeat([]byte("x"), maxUploadChunk+1)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}

	if fi, err := os.Stat(h.blobPath(u.ID)); err == nil && fi.Size() != 0 {
		t.Errorf("blob size = %d after rejected chunk, want 0", fi.Size())
	}
	got, err := env.store.GetUploadSession(context.Background(), env.tenant.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceivedBytes != 0 {
		t.Errorf("ReceivedBytes = %d after rejected chunk, want 0", got.ReceivedBytes)
	}
}

func TestUploadHandler_ChunkExceedsDeclaredSize(t *testing.T) {
	env, h := newUploadEnv(t)
	u := env.openUpload(t, 4)

	w := httptest.NewRecorder()
	h.append(w, env.chunkRequest(u.ID, []byte("head")))
	if w.Code != http.StatusOK {
		t.Fatalf("first append status = %d, body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.append(w, env.chunkRequest(u.ID, []byte("overflow")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	// The rejected chunk must not leave partial bytes behind.
	fi, err := os.Stat(h.blobPath(u.ID))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 4 {
		t.Errorf("blob size = %d after rejected chunk, want 4", fi.Size())
	}
	got, err := env.store.GetUploadSession(context.Background(), env.tenant.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceivedBytes != 4 {
		t.Errorf("ReceivedBytes = %d, want 4", got.ReceivedBytes)
	}
}
