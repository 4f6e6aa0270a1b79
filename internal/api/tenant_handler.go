package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

// tenantHandler exposes the caller's own tenant. Tenants are created by
// the init command or the config file, not over the API.
type tenantHandler struct {
	store    store.TenantStore
	recorder *audit.Recorder
}

func (h *tenantHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	t, err := h.store.GetTenant(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *tenantHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetTenant(ctx, id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	t := *existing
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.ID = existing.ID
	t.Slug = existing.Slug

	err = h.store.UpdateTenant(ctx, &t)
	recordAudit(ctx, h.recorder, "tenant.update", "tenant", t.ID, start, err, map[string]string{"name": t.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
