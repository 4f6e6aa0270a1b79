package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

// maxUploadChunk bounds a single append request body.
const maxUploadChunk = 16 << 20

type uploadHandler struct {
	store    store.Store
	recorder *audit.Recorder
	dir      string
}

func (h *uploadHandler) blobPath(sessionID string) string {
	return filepath.Join(h.dir, sessionID+".part")
}

func (h *uploadHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	var u store.UploadSession
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if u.ShardID == "" || u.FileName == "" {
		writeError(w, http.StatusBadRequest, "shard_id and file_name are required")
		return
	}
	if _, err := h.store.GetShard(ctx, id.TenantID, u.ShardID); err != nil {
		writeStoreError(w, err)
		return
	}
	u.TenantID = id.TenantID
	u.Status = "open"
	u.ReceivedBytes = 0
	u.CreatedBy = id.UserID

	err := h.store.CreateUploadSession(ctx, &u)
	recordAudit(ctx, h.recorder, "upload.create", "upload", u.ID, start, err, map[string]string{"file_name": u.FileName})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *uploadHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	u, err := h.store.GetUploadSession(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// append receives one chunk of raw bytes and appends it to the session's
// blob file. Chunks must arrive in order; there is no sparse assembly.
func (h *uploadHandler) append(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	u, err := h.store.GetUploadSession(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if u.Status != "open" {
		writeError(w, http.StatusConflict, "upload session is not open")
		return
	}

	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	path := h.blobPath(u.ID)
	var prior int64
	if fi, serr := os.Stat(path); serr == nil {
		prior = fi.Size()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// MaxBytesReader makes an oversize chunk a hard error rather than a
	// silent truncation. Any rejected append truncates the blob back to
	// its prior length so file and session stay in step.
	n, err := io.Copy(f, http.MaxBytesReader(w, r.Body, maxUploadChunk))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Truncate(path, prior)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "chunk exceeds maximum size")
			return
		}
		writeError(w, http.StatusInternalServerError, "write chunk failed")
		return
	}

	u.ReceivedBytes += n
	if u.DeclaredSize > 0 && u.ReceivedBytes > u.DeclaredSize {
		_ = os.Truncate(path, prior)
		writeError(w, http.StatusBadRequest, "received more bytes than declared size")
		return
	}
	if err := h.store.UpdateUploadSession(ctx, u); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *uploadHandler) complete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	u, err := h.store.GetUploadSession(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if u.Status != "open" {
		writeError(w, http.StatusConflict, "upload session is not open")
		return
	}
	if u.DeclaredSize > 0 && u.ReceivedBytes != u.DeclaredSize {
		writeError(w, http.StatusBadRequest, "received bytes do not match declared size")
		return
	}

	now := time.Now().UTC()
	u.Status = "complete"
	u.CompletedAt = &now
	err = h.store.UpdateUploadSession(ctx, u)
	recordAudit(ctx, h.recorder, "upload.complete", "upload", u.ID, start, err, map[string]int64{"bytes": u.ReceivedBytes})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *uploadHandler) abort(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	u, err := h.store.GetUploadSession(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	u.Status = "aborted"
	err = h.store.UpdateUploadSession(ctx, u)
	recordAudit(ctx, h.recorder, "upload.abort", "upload", u.ID, start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = os.Remove(h.blobPath(u.ID))
	w.WriteHeader(http.StatusNoContent)
}
