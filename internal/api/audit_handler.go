package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shardlabs/shardbase/internal/store"
)

type auditHandler struct {
	store store.AuditStore
}

func (h *auditHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	f := store.AuditFilter{TenantID: id.TenantID}
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **string
	}{
		{"user_id", &f.UserID},
		{"action", &f.Action},
		{"entity_type", &f.EntityType},
		{"status", &f.Status},
	} {
		if v := q.Get(p.name); v != "" {
			*p.dst = &v
		}
	}
	if t, err := time.Parse(time.RFC3339, q.Get("after")); err == nil {
		f.After = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("before")); err == nil {
		f.Before = &t
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}

	records, total, err := h.store.QueryAuditRecords(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []store.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: records, Total: total})
}
