package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

type collectionHandler struct {
	store    store.CollectionStore
	recorder *audit.Recorder
}

func (h *collectionHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	collections, err := h.store.ListCollections(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if collections == nil {
		collections = []store.Collection{}
	}
	writeJSON(w, http.StatusOK, collections)
}

func (h *collectionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	c, err := h.store.GetCollection(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *collectionHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	var c store.Collection
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	c.TenantID = id.TenantID
	c.CreatedBy = id.UserID

	err := h.store.CreateCollection(r.Context(), &c)
	recordAudit(r.Context(), h.recorder, "collection.create", "collection", c.ID, start, err, map[string]string{"name": c.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *collectionHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetCollection(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	c := *existing
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.ID = existing.ID
	c.TenantID = existing.TenantID
	c.CreatedBy = existing.CreatedBy

	err = h.store.UpdateCollection(ctx, &c)
	recordAudit(ctx, h.recorder, "collection.update", "collection", c.ID, start, err, map[string]string{"name": c.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *collectionHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	err := h.store.DeleteCollection(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "collection.delete", "collection", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
