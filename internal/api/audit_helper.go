package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/store"
)

// recordAudit writes one audit record for a mutation. Failures are
// logged, never surfaced: audit must not fail the request it describes.
func recordAudit(ctx context.Context, rec *audit.Recorder, action, entityType, entityID string, start time.Time, opErr error, detail any) {
	if rec == nil {
		return
	}
	id, _ := identityFrom(ctx)

	record := &store.AuditRecord{
		Timestamp:  start,
		TenantID:   id.TenantID,
		UserID:     id.UserID,
		SessionID:  id.SessionID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     "ok",
		LatencyMs:  int(time.Since(start).Milliseconds()),
	}
	if opErr != nil {
		record.Status = "error"
		record.ErrorMessage = opErr.Error()
	}
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			record.Detail = raw
		}
	}

	if err := rec.Record(ctx, record); err != nil {
		slog.Error("record audit", "action", action, "error", err)
	}
}
