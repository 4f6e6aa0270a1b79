package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

type shardTypeHandler struct {
	store    store.ShardTypeStore
	recorder *audit.Recorder
}

func (h *shardTypeHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	types, err := h.store.ListShardTypes(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if types == nil {
		types = []store.ShardType{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *shardTypeHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	st, err := h.store.GetShardType(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *shardTypeHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	var st store.ShardType
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if st.Key == "" || st.Name == "" {
		writeError(w, http.StatusBadRequest, "key and name are required")
		return
	}
	if !strings.HasPrefix(st.Key, "c_") {
		writeError(w, http.StatusBadRequest, "key must start with c_")
		return
	}
	st.TenantID = id.TenantID
	st.System = false

	err := h.store.CreateShardType(r.Context(), &st)
	recordAudit(r.Context(), h.recorder, "shard_type.create", "shard_type", st.ID, start, err, map[string]string{"key": st.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *shardTypeHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetShardType(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	st := *existing
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Identity fields are immutable; the key anchors filters and events.
	st.ID = existing.ID
	st.TenantID = existing.TenantID
	st.Key = existing.Key
	st.System = existing.System

	err = h.store.UpdateShardType(ctx, &st)
	recordAudit(ctx, h.recorder, "shard_type.update", "shard_type", st.ID, start, err, map[string]string{"key": st.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *shardTypeHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetShardType(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing.System {
		writeError(w, http.StatusForbidden, "system shard types cannot be deleted")
		return
	}

	err = h.store.DeleteShardType(ctx, id.TenantID, existing.ID)
	recordAudit(ctx, h.recorder, "shard_type.delete", "shard_type", existing.ID, start, err, map[string]string{"key": existing.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
