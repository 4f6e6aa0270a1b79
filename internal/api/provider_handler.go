package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/connect"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
)

type providerHandler struct {
	store     store.ProviderStore
	recorder  *audit.Recorder
	encryptor *secrets.AgeEncryptor
}

// providerRequest is the client-facing shape of an OAuth provider. The
// client secret arrives in plaintext and is stored age-encrypted.
type providerRequest struct {
	Name         string   `json:"name"`
	TemplateID   string   `json:"template_id"`
	AuthorizeURL string   `json:"authorize_url"`
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	UsePKCE      *bool    `json:"use_pkce"`
}

func (h *providerHandler) templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, connect.ListTemplates())
}

func (h *providerHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	providers, err := h.store.ListProviders(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if providers == nil {
		providers = []store.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *providerHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	p, err := h.store.GetProvider(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *providerHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := store.Provider{
		TenantID:     id.TenantID,
		Name:         req.Name,
		TemplateID:   req.TemplateID,
		AuthorizeURL: req.AuthorizeURL,
		TokenURL:     req.TokenURL,
		ClientID:     req.ClientID,
	}

	// A template pre-fills endpoints and scopes; explicit values win.
	if req.TemplateID != "" {
		tpl, ok := connect.GetTemplate(req.TemplateID)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown provider template")
			return
		}
		if p.Name == "" {
			p.Name = tpl.Name
		}
		if p.AuthorizeURL == "" {
			p.AuthorizeURL = tpl.AuthorizeURL
		}
		if p.TokenURL == "" {
			p.TokenURL = tpl.TokenURL
		}
		if len(req.Scopes) == 0 {
			req.Scopes = tpl.Scopes
		}
		if req.UsePKCE == nil {
			p.UsePKCE = tpl.UsePKCE
		}
	}
	if req.UsePKCE != nil {
		p.UsePKCE = *req.UsePKCE
	}
	if p.Name == "" || p.ClientID == "" {
		writeError(w, http.StatusBadRequest, "name and client_id are required")
		return
	}
	if p.AuthorizeURL == "" || p.TokenURL == "" {
		writeError(w, http.StatusBadRequest, "authorize_url and token_url are required")
		return
	}
	if len(req.Scopes) > 0 {
		scopes, err := json.Marshal(req.Scopes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		p.Scopes = scopes
	}
	if req.ClientSecret != "" {
		enc, err := h.encryptor.Encrypt([]byte(req.ClientSecret))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		p.EncryptedClientSecret = enc
	}

	err := h.store.CreateProvider(r.Context(), &p)
	recordAudit(r.Context(), h.recorder, "provider.create", "provider", p.ID, start, err, map[string]string{"name": p.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *providerHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetProvider(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := *existing
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.AuthorizeURL != "" {
		p.AuthorizeURL = req.AuthorizeURL
	}
	if req.TokenURL != "" {
		p.TokenURL = req.TokenURL
	}
	if req.ClientID != "" {
		p.ClientID = req.ClientID
	}
	if req.UsePKCE != nil {
		p.UsePKCE = *req.UsePKCE
	}
	if req.Scopes != nil {
		scopes, err := json.Marshal(req.Scopes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		p.Scopes = scopes
	}
	if req.ClientSecret != "" {
		enc, err := h.encryptor.Encrypt([]byte(req.ClientSecret))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		p.EncryptedClientSecret = enc
	}

	err = h.store.UpdateProvider(ctx, &p)
	recordAudit(ctx, h.recorder, "provider.update", "provider", p.ID, start, err, map[string]string{"name": p.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *providerHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	err := h.store.DeleteProvider(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "provider.delete", "provider", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
