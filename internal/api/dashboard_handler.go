package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/cache"
	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/store"
)

type dashboardHandler struct {
	store     store.Store
	validator *auth.Validator
	registry  *realtime.Registry
}

// timeRange resolves the "range" query parameter into a window and a
// bucket width for time series. Defaults to the last 24 hours.
func timeRange(r *http.Request) (after, before time.Time, bucketSec int) {
	before = time.Now().UTC()
	switch r.URL.Query().Get("range") {
	case "1h":
		return before.Add(-time.Hour), before, 300
	case "7d":
		return before.AddDate(0, 0, -7), before, 3600 * 6
	case "30d":
		return before.AddDate(0, 0, -30), before, 3600 * 24
	default:
		return before.Add(-24 * time.Hour), before, 3600
	}
}

func (h *dashboardHandler) overview(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	ctx := r.Context()
	after, before, _ := timeRange(r)

	stats, err := h.store.GetAuditStats(ctx, id.TenantID, after, before)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	counts, err := h.store.CountShardsByType(ctx, id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	sessions, err := h.store.ListActiveSessions(ctx, id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var cacheStats cache.Stats
	if h.validator != nil {
		cacheStats = h.validator.CacheStats()
	}
	connections := 0
	if h.registry != nil {
		connections = h.registry.ConnectionCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit":            stats,
		"shards_by_type":   counts,
		"active_sessions":  len(sessions),
		"open_connections": connections,
		"token_cache":      cacheStats,
	})
}

func (h *dashboardHandler) activity(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	after, before, bucketSec := timeRange(r)

	points, err := h.store.GetActivityTimeSeries(r.Context(), id.TenantID, after, before, bucketSec)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if points == nil {
		points = []store.TimeSeriesPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *dashboardHandler) typeActivity(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	after, before, _ := timeRange(r)

	entries, err := h.store.GetTypeActivity(r.Context(), id.TenantID, after, before, 10)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if entries == nil {
		entries = []store.TypeActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
