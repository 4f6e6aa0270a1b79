package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/webhook"
)

type webhookHandler struct {
	store      store.WebhookStore
	recorder   *audit.Recorder
	encryptor  *secrets.AgeEncryptor
	dispatcher *webhook.Dispatcher
}

// webhookRequest is the client-facing shape of a webhook. The signing
// secret arrives in plaintext and is stored age-encrypted; it is never
// returned by reads.
type webhookRequest struct {
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	Secret          string          `json:"secret"`
	EventTypes      json.RawMessage `json:"event_types"`
	ShardTypeIDs    json.RawMessage `json:"shard_type_ids"`
	TransformScript *string         `json:"transform_script"`
	Active          *bool           `json:"active"`
}

func (h *webhookHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	hooks, err := h.store.ListWebhooks(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if hooks == nil {
		hooks = []store.Webhook{}
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *webhookHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	hook, err := h.store.GetWebhook(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (h *webhookHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := validateWebhookURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hook := store.Webhook{
		TenantID:        id.TenantID,
		Name:            req.Name,
		URL:             req.URL,
		EventTypes:      req.EventTypes,
		ShardTypeIDs:    req.ShardTypeIDs,
		Active:          req.Active == nil || *req.Active,
	}
	if req.TransformScript != nil {
		hook.TransformScript = *req.TransformScript
	}
	if req.Secret != "" {
		enc, err := h.encryptor.Encrypt([]byte(req.Secret))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hook.EncryptedSecret = enc
	}

	err := h.store.CreateWebhook(r.Context(), &hook)
	recordAudit(r.Context(), h.recorder, "webhook.create", "webhook", hook.ID, start, err, map[string]string{"name": hook.Name, "url": hook.URL})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (h *webhookHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetWebhook(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hook := *existing
	if req.Name != "" {
		hook.Name = req.Name
	}
	if req.URL != "" {
		if err := validateWebhookURL(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		hook.URL = req.URL
	}
	if req.EventTypes != nil {
		hook.EventTypes = req.EventTypes
	}
	if req.ShardTypeIDs != nil {
		hook.ShardTypeIDs = req.ShardTypeIDs
	}
	if req.TransformScript != nil {
		hook.TransformScript = *req.TransformScript
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}
	if req.Secret != "" {
		enc, err := h.encryptor.Encrypt([]byte(req.Secret))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hook.EncryptedSecret = enc
	}

	err = h.store.UpdateWebhook(ctx, &hook)
	recordAudit(ctx, h.recorder, "webhook.update", "webhook", hook.ID, start, err, map[string]string{"name": hook.Name})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (h *webhookHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	err := h.store.DeleteWebhook(r.Context(), id.TenantID, r.PathValue("id"))
	recordAudit(r.Context(), h.recorder, "webhook.delete", "webhook", r.PathValue("id"), start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// test sends a synthetic event to the webhook's endpoint. Delivery runs
// in the background so a slow or retrying endpoint does not hold the
// request; the result shows up in the delivery log.
func (h *webhookHandler) test(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	hook, err := h.store.GetWebhook(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook dispatcher not running")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = h.dispatcher.TestDelivery(ctx, hook)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *webhookHandler) deliveries(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := h.store.ListWebhookDeliveries(r.Context(), id.TenantID, r.PathValue("id"), 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []store.WebhookDelivery{}
	}
	writeJSON(w, http.StatusOK, list)
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be a valid http or https URL")
	}
	return nil
}
