package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/connect"
	"github.com/shardlabs/shardbase/internal/store"
)

type integrationHandler struct {
	store    store.Store
	recorder *audit.Recorder
	flow     *connect.FlowManager
}

func (h *integrationHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	integrations, err := h.store.ListIntegrations(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if integrations == nil {
		integrations = []store.Integration{}
	}
	writeJSON(w, http.StatusOK, integrations)
}

func (h *integrationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	i, err := h.store.GetIntegration(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *integrationHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	var i store.Integration
	if err := decodeJSON(r, &i); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if i.ProviderID == "" {
		writeError(w, http.StatusBadRequest, "provider_id is required")
		return
	}
	if _, err := h.store.GetProvider(ctx, id.TenantID, i.ProviderID); err != nil {
		writeStoreError(w, err)
		return
	}
	if i.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if i.Kind == "" {
		i.Kind = "generic"
	}
	i.TenantID = id.TenantID
	i.Status = "pending"
	i.CreatedBy = id.UserID
	i.TokenData = nil

	err := h.store.CreateIntegration(ctx, &i)
	recordAudit(ctx, h.recorder, "integration.create", "integration", i.ID, start, err, map[string]string{"name": i.Name, "kind": i.Kind})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *integrationHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	err := h.store.DeleteIntegration(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "integration.delete", "integration", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize begins the OAuth2 flow for an integration and returns the
// provider authorize URL for the client to redirect the user to.
func (h *integrationHandler) authorize(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "integration connect not configured")
		return
	}
	u, err := h.flow.AuthorizeURL(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorize_url": u})
}

// callback is the public OAuth2 redirect target. The state token binds
// the request to the tenant and integration that started the flow.
func (h *integrationHandler) callback(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "integration connect not configured")
		return
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+msg)
		return
	}
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	tenantID, integrationID, err := h.flow.HandleCallback(r.Context(), state, code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "connect callback failed")
		return
	}
	if h.recorder != nil {
		_ = h.recorder.Record(r.Context(), &store.AuditRecord{
			TenantID:   tenantID,
			Action:     "integration.connect",
			EntityType: "integration",
			EntityID:   integrationID,
			Status:     "ok",
			LatencyMs:  int(time.Since(start).Milliseconds()),
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<html><body><p>Integration connected. You can close this window.</p></body></html>"))
}

func (h *integrationHandler) status(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "integration connect not configured")
		return
	}
	status, expiresAt, err := h.flow.TokenStatus(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := map[string]any{"status": status}
	if expiresAt != nil {
		resp["expires_at"] = expiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *integrationHandler) refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "integration connect not configured")
		return
	}

	td, err := h.flow.RefreshToken(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "integration.refresh", "integration", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, "token refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "connected", "expires_at": td.ExpiresAt})
}

func (h *integrationHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "integration connect not configured")
		return
	}

	err := h.flow.Disconnect(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "integration.disconnect", "integration", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}
