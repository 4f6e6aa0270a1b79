package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

type modelHandler struct {
	store    store.ModelStore
	recorder *audit.Recorder
}

func (h *modelHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	models, err := h.store.ListModels(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if models == nil {
		models = []store.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *modelHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	m, err := h.store.GetModel(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *modelHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	var m store.Model
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.Key == "" || m.Name == "" {
		writeError(w, http.StatusBadRequest, "key and name are required")
		return
	}
	if m.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	m.TenantID = id.TenantID

	err := h.store.CreateModel(r.Context(), &m)
	recordAudit(r.Context(), h.recorder, "model.create", "model", m.ID, start, err, map[string]string{"key": m.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *modelHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetModel(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// Built-in catalog entries are shared across tenants and read-only.
	if existing.TenantID == "" {
		writeError(w, http.StatusForbidden, "built-in models cannot be modified")
		return
	}

	m := *existing
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m.ID = existing.ID
	m.TenantID = existing.TenantID
	m.Key = existing.Key

	err = h.store.UpdateModel(ctx, &m)
	recordAudit(ctx, h.recorder, "model.update", "model", m.ID, start, err, map[string]string{"key": m.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *modelHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetModel(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing.TenantID == "" {
		writeError(w, http.StatusForbidden, "built-in models cannot be deleted")
		return
	}

	err = h.store.DeleteModel(ctx, id.TenantID, existing.ID)
	recordAudit(ctx, h.recorder, "model.delete", "model", existing.ID, start, err, map[string]string{"key": existing.Key})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
