package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

const webhookCols = `id, tenant_id, name, url, encrypted_secret, event_types, shard_type_ids, transform_script, active, created_at, updated_at`

func (d *DB) CreateWebhook(ctx context.Context, w *store.Webhook) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO webhooks (`+webhookCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.TenantID, w.Name, w.URL, w.EncryptedSecret,
		normalizeJSON(w.EventTypes, "[]"), normalizeJSON(w.ShardTypeIDs, "[]"),
		w.TransformScript, boolToInt(w.Active),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetWebhook(ctx context.Context, tenantID, id string) (*store.Webhook, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+webhookCols+` FROM webhooks WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanWebhook(row)
}

func (d *DB) ListWebhooks(ctx context.Context, tenantID string) ([]store.Webhook, error) {
	return d.listWebhooks(ctx, `
		SELECT `+webhookCols+` FROM webhooks WHERE tenant_id = ? ORDER BY name`,
		tenantID)
}

func (d *DB) ListActiveWebhooks(ctx context.Context, tenantID string) ([]store.Webhook, error) {
	return d.listWebhooks(ctx, `
		SELECT `+webhookCols+` FROM webhooks
		WHERE tenant_id = ? AND active = 1 ORDER BY name`,
		tenantID)
}

func (d *DB) listWebhooks(ctx context.Context, query string, args ...any) ([]store.Webhook, error) {
	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Webhook
	for rows.Next() {
		w, err := scanWebhookRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (d *DB) UpdateWebhook(ctx context.Context, w *store.Webhook) error {
	w.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE webhooks
		SET name = ?, url = ?, encrypted_secret = ?, event_types = ?,
		    shard_type_ids = ?, transform_script = ?, active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		w.Name, w.URL, w.EncryptedSecret,
		normalizeJSON(w.EventTypes, "[]"), normalizeJSON(w.ShardTypeIDs, "[]"),
		w.TransformScript, boolToInt(w.Active), formatTime(w.UpdatedAt),
		w.TenantID, w.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteWebhook(ctx context.Context, tenantID, id string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM webhooks WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

const deliveryCols = `id, webhook_id, tenant_id, event_type, payload, status, attempts, last_error, last_code, delivered_at, created_at, updated_at`

func (d *DB) InsertWebhookDelivery(ctx context.Context, del *store.WebhookDelivery) error {
	if del.ID == "" {
		del.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	del.CreatedAt = now
	del.UpdatedAt = now
	if del.Status == "" {
		del.Status = "pending"
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (`+deliveryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		del.ID, del.WebhookID, del.TenantID, del.EventType, del.Payload,
		del.Status, del.Attempts, del.LastError, del.LastCode,
		formatTimePtr(del.DeliveredAt), formatTime(del.CreatedAt), formatTime(del.UpdatedAt),
	)
	return err
}

func (d *DB) UpdateWebhookDelivery(ctx context.Context, del *store.WebhookDelivery) error {
	del.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = ?, attempts = ?, last_error = ?, last_code = ?,
		    delivered_at = ?, updated_at = ?
		WHERE id = ?`,
		del.Status, del.Attempts, del.LastError, del.LastCode,
		formatTimePtr(del.DeliveredAt), formatTime(del.UpdatedAt), del.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) ListWebhookDeliveries(ctx context.Context, tenantID, webhookID string, limit int) ([]store.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+deliveryCols+` FROM webhook_deliveries
		WHERE tenant_id = ? AND webhook_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		tenantID, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.WebhookDelivery
	for rows.Next() {
		var del store.WebhookDelivery
		var deliveredAt *string
		var createdAt, updatedAt string
		if err := rows.Scan(&del.ID, &del.WebhookID, &del.TenantID, &del.EventType,
			&del.Payload, &del.Status, &del.Attempts, &del.LastError, &del.LastCode,
			&deliveredAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		del.DeliveredAt = parseTimePtr(deliveredAt)
		del.CreatedAt = parseTime(createdAt)
		del.UpdatedAt = parseTime(updatedAt)
		out = append(out, del)
	}
	return out, rows.Err()
}

func scanWebhook(row *sql.Row) (*store.Webhook, error) {
	var w store.Webhook
	var eventTypes, shardTypeIDs, createdAt, updatedAt string
	var active int
	err := row.Scan(&w.ID, &w.TenantID, &w.Name, &w.URL, &w.EncryptedSecret,
		&eventTypes, &shardTypeIDs, &w.TransformScript, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.EventTypes = json.RawMessage(eventTypes)
	w.ShardTypeIDs = json.RawMessage(shardTypeIDs)
	w.Active = active != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

func scanWebhookRow(row rowScanner) (*store.Webhook, error) {
	var w store.Webhook
	var eventTypes, shardTypeIDs, createdAt, updatedAt string
	var active int
	if err := row.Scan(&w.ID, &w.TenantID, &w.Name, &w.URL, &w.EncryptedSecret,
		&eventTypes, &shardTypeIDs, &w.TransformScript, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.EventTypes = json.RawMessage(eventTypes)
	w.ShardTypeIDs = json.RawMessage(shardTypeIDs)
	w.Active = active != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}
