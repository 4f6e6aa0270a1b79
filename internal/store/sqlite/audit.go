package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

const auditCols = `id, timestamp, tenant_id, user_id, session_id, action, entity_type, entity_id, detail, status, error_message, latency_ms, created_at`

func (d *DB) InsertAuditRecord(ctx context.Context, r *store.AuditRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	r.CreatedAt = now
	if r.Status == "" {
		r.Status = "ok"
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO audit_records (`+auditCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.Timestamp), r.TenantID, r.UserID, r.SessionID,
		r.Action, r.EntityType, r.EntityID, normalizeJSON(r.Detail, "{}"),
		r.Status, r.ErrorMessage, r.LatencyMs, formatTime(r.CreatedAt),
	)
	return err
}

func (d *DB) QueryAuditRecords(ctx context.Context, f store.AuditFilter) ([]store.AuditRecord, int, error) {
	where := "WHERE tenant_id = ?"
	args := []any{f.TenantID}

	if f.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *f.UserID)
	}
	if f.Action != nil {
		where += " AND action = ?"
		args = append(args, *f.Action)
	}
	if f.EntityType != nil {
		where += " AND entity_type = ?"
		args = append(args, *f.EntityType)
	}
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.After != nil {
		where += " AND timestamp >= ?"
		args = append(args, formatTime(*f.After))
	}
	if f.Before != nil {
		where += " AND timestamp < ?"
		args = append(args, formatTime(*f.Before))
	}

	var total int
	if err := d.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_records "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM audit_records %s ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		auditCols, where,
	)
	args = append(args, limit, f.Offset)

	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		var r store.AuditRecord
		var ts, detail, createdAt string
		if err := rows.Scan(&r.ID, &ts, &r.TenantID, &r.UserID, &r.SessionID,
			&r.Action, &r.EntityType, &r.EntityID, &detail,
			&r.Status, &r.ErrorMessage, &r.LatencyMs, &createdAt); err != nil {
			return nil, 0, err
		}
		r.Timestamp = parseTime(ts)
		r.Detail = json.RawMessage(detail)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (d *DB) GetAuditStats(ctx context.Context, tenantID string, after, before time.Time) (*store.AuditStats, error) {
	var s store.AuditStats
	err := d.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(latency_ms), 0),
		       COUNT(DISTINCT user_id)
		FROM audit_records
		WHERE tenant_id = ? AND timestamp >= ? AND timestamp < ?`,
		tenantID, formatTime(after), formatTime(before),
	).Scan(&s.TotalActions, &s.OKCount, &s.ErrorCount, &s.AvgLatencyMs, &s.ActiveUsers)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) GetActivityTimeSeries(ctx context.Context, tenantID string, after, before time.Time, bucketSec int) ([]store.TimeSeriesPoint, error) {
	if bucketSec <= 0 {
		bucketSec = 60
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT (CAST(strftime('%s', timestamp) AS INTEGER) / ?) * ? AS bucket,
		       COUNT(*),
		       SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
		       COUNT(DISTINCT user_id)
		FROM audit_records
		WHERE tenant_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY bucket ORDER BY bucket`,
		bucketSec, bucketSec, tenantID, formatTime(after), formatTime(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TimeSeriesPoint
	for rows.Next() {
		var epoch int64
		var p store.TimeSeriesPoint
		if err := rows.Scan(&epoch, &p.Total, &p.Errors, &p.Users); err != nil {
			return nil, err
		}
		p.Bucket = time.Unix(epoch, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetTypeActivity(ctx context.Context, tenantID string, after, before time.Time, limit int) ([]store.TypeActivityEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT json_extract(detail, '$.shard_type_id') AS type_id,
		       COUNT(*),
		       SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		FROM audit_records
		WHERE tenant_id = ? AND timestamp >= ? AND timestamp < ?
		  AND type_id IS NOT NULL AND type_id != ''
		GROUP BY type_id ORDER BY COUNT(*) DESC LIMIT ?`,
		tenantID, formatTime(after), formatTime(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TypeActivityEntry
	for rows.Next() {
		var e store.TypeActivityEntry
		if err := rows.Scan(&e.ShardTypeID, &e.Count, &e.Errors); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
