package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/store"
)

const (
	eventShardCreated = "created"
	eventShardUpdated = "updated"
	eventShardDeleted = "deleted"
)

type shardHandler struct {
	store    store.Store
	recorder *audit.Recorder
	events   realtime.Publisher
	logger   *slog.Logger
}

func (h *shardHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	f := shardFilterFromQuery(r)
	shards, total, err := h.store.ListShards(r.Context(), id.TenantID, f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if shards == nil {
		shards = []store.Shard{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: shards, Total: total})
}

func shardFilterFromQuery(r *http.Request) store.ShardFilter {
	var f store.ShardFilter
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **string
	}{
		{"collection_id", &f.CollectionID},
		{"shard_type_id", &f.ShardTypeID},
		{"status", &f.Status},
		{"search", &f.Search},
	} {
		if v := q.Get(p.name); v != "" {
			*p.dst = &v
		}
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}

func (h *shardHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	s, err := h.store.GetShard(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *shardHandler) create(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	var s store.Shard
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.CollectionID == "" || s.ShardTypeID == "" {
		writeError(w, http.StatusBadRequest, "collection_id and shard_type_id are required")
		return
	}
	if s.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.TenantID = id.TenantID
	s.CreatedBy = id.UserID
	s.UpdatedBy = id.UserID

	err := h.store.CreateShard(ctx, &s)
	recordAudit(ctx, h.recorder, "shard.create", "shard", s.ID, start, err, map[string]string{
		"title":         s.Title,
		"shard_type_id": h.typeKey(ctx, &s),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.publish(ctx, eventShardCreated, &s)
	writeJSON(w, http.StatusCreated, s)
}

// shardUpdateRequest carries the mutable fields of a shard plus the
// revision the client last saw. The update is rejected with a conflict
// when the stored revision has moved past it.
type shardUpdateRequest struct {
	Title    *string         `json:"title"`
	Content  json.RawMessage `json:"content"`
	Status   *string         `json:"status"`
	Revision *int            `json:"revision"`
}

func (h *shardHandler) update(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	var req shardUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var updated *store.Shard
	err := h.store.Tx(ctx, func(tx store.Store) error {
		existing, err := tx.GetShard(ctx, id.TenantID, r.PathValue("id"))
		if err != nil {
			return err
		}

		s := *existing
		if req.Title != nil {
			s.Title = *req.Title
		}
		if req.Content != nil {
			s.Content = req.Content
		}
		if req.Status != nil {
			s.Status = *req.Status
		}
		if req.Revision != nil {
			s.Revision = *req.Revision
		}
		s.UpdatedBy = id.UserID

		if err := tx.UpdateShard(ctx, &s); err != nil {
			return err
		}
		snapshotBy := existing.UpdatedBy
		if snapshotBy == "" {
			snapshotBy = existing.CreatedBy
		}
		if err := tx.InsertRevision(ctx, &store.ShardRevision{
			ShardID:   existing.ID,
			TenantID:  existing.TenantID,
			Revision:  existing.Revision,
			Title:     existing.Title,
			Content:   existing.Content,
			CreatedBy: snapshotBy,
		}); err != nil {
			return err
		}
		updated = &s
		return nil
	})
	detail := map[string]string(nil)
	if updated != nil {
		detail = map[string]string{
			"title":         updated.Title,
			"shard_type_id": h.typeKey(ctx, updated),
		}
	}
	recordAudit(ctx, h.recorder, "shard.update", "shard", r.PathValue("id"), start, err, detail)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.publish(ctx, eventShardUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *shardHandler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	existing, err := h.store.GetShard(ctx, id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	err = h.store.DeleteShard(ctx, id.TenantID, existing.ID)
	recordAudit(ctx, h.recorder, "shard.delete", "shard", existing.ID, start, err, map[string]string{
		"title":         existing.Title,
		"shard_type_id": h.typeKey(ctx, existing),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.publish(ctx, eventShardDeleted, existing)
	w.WriteHeader(http.StatusNoContent)
}

// typeKey resolves the shard type's stable key (e.g. "c_document").
// Events, filters, and audit aggregates all use the key, not the row ID.
func (h *shardHandler) typeKey(ctx context.Context, s *store.Shard) string {
	if st, err := h.store.GetShardType(ctx, s.TenantID, s.ShardTypeID); err == nil {
		return st.Key
	}
	return s.ShardTypeID
}

// publish emits a change event carrying the shard type key rather than
// the row ID, so stream and webhook filters match on the stable key.
func (h *shardHandler) publish(ctx context.Context, eventType string, s *store.Shard) {
	if h.events == nil {
		return
	}
	e, err := realtime.NewEvent(eventType, s.TenantID, h.typeKey(ctx, s), s.ID, s)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("encode shard event", "shard_id", s.ID, "error", err)
		}
		return
	}
	h.events.Publish(ctx, e)
}

func (h *shardHandler) listRevisions(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	revs, err := h.store.ListRevisions(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if revs == nil {
		revs = []store.ShardRevision{}
	}
	writeJSON(w, http.StatusOK, revs)
}

func (h *shardHandler) getRevision(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	rev, err := strconv.Atoi(r.PathValue("rev"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid revision number")
		return
	}
	rec, err := h.store.GetRevision(r.Context(), id.TenantID, r.PathValue("id"), rev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// restoreRevision copies an old snapshot's title and content back onto
// the shard as a regular update, so the restore itself is versioned.
func (h *shardHandler) restoreRevision(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	rev, err := strconv.Atoi(r.PathValue("rev"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid revision number")
		return
	}

	var restored *store.Shard
	err = h.store.Tx(ctx, func(tx store.Store) error {
		snapshot, err := tx.GetRevision(ctx, id.TenantID, r.PathValue("id"), rev)
		if err != nil {
			return err
		}
		existing, err := tx.GetShard(ctx, id.TenantID, r.PathValue("id"))
		if err != nil {
			return err
		}

		s := *existing
		s.Title = snapshot.Title
		s.Content = snapshot.Content
		s.UpdatedBy = id.UserID
		if err := tx.UpdateShard(ctx, &s); err != nil {
			return err
		}
		snapshotBy := existing.UpdatedBy
		if snapshotBy == "" {
			snapshotBy = existing.CreatedBy
		}
		if err := tx.InsertRevision(ctx, &store.ShardRevision{
			ShardID:   existing.ID,
			TenantID:  existing.TenantID,
			Revision:  existing.Revision,
			Title:     existing.Title,
			Content:   existing.Content,
			CreatedBy: snapshotBy,
		}); err != nil {
			return err
		}
		restored = &s
		return nil
	})
	recordAudit(ctx, h.recorder, "shard.restore", "shard", r.PathValue("id"), start, err, map[string]int{"revision": rev})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.publish(ctx, eventShardUpdated, restored)
	writeJSON(w, http.StatusOK, restored)
}
