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

const modelCols = `id, tenant_id, key, name, provider, task, capabilities, config, enabled, created_at, updated_at`

func (d *DB) CreateModel(ctx context.Context, m *store.Model) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Provider == "" {
		m.Provider = "builtin"
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO models (`+modelCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.Key, m.Name, m.Provider, m.Task,
		normalizeJSON(m.Capabilities, "[]"), normalizeJSON(m.Config, "{}"),
		boolToInt(m.Enabled), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetModel(ctx context.Context, tenantID, id string) (*store.Model, error) {
	// Built-in catalog entries (empty tenant) are visible to every tenant.
	row := d.q.QueryRowContext(ctx, `
		SELECT `+modelCols+` FROM models
		WHERE id = ? AND (tenant_id = ? OR tenant_id = '')`, id, tenantID)
	return scanModel(row)
}

func (d *DB) GetModelByKey(ctx context.Context, tenantID, key string) (*store.Model, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+modelCols+` FROM models
		WHERE key = ? AND (tenant_id = ? OR tenant_id = '')
		ORDER BY tenant_id DESC LIMIT 1`, key, tenantID)
	return scanModel(row)
}

func (d *DB) ListModels(ctx context.Context, tenantID string) ([]store.Model, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+modelCols+` FROM models
		WHERE tenant_id = ? OR tenant_id = '' ORDER BY key`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Model
	for rows.Next() {
		m, err := scanModelRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (d *DB) UpdateModel(ctx context.Context, m *store.Model) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE models
		SET key = ?, name = ?, provider = ?, task = ?, capabilities = ?,
		    config = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		m.Key, m.Name, m.Provider, m.Task,
		normalizeJSON(m.Capabilities, "[]"), normalizeJSON(m.Config, "{}"),
		boolToInt(m.Enabled), formatTime(m.UpdatedAt), m.ID, m.TenantID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteModel(ctx context.Context, tenantID, id string) error {
	// Only tenant-owned entries can be deleted, never the built-in catalog.
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM models WHERE id = ? AND tenant_id = ? AND tenant_id != ''`,
		id, tenantID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanModel(row *sql.Row) (*store.Model, error) {
	var m store.Model
	var caps, config, createdAt, updatedAt string
	var enabled int
	err := row.Scan(&m.ID, &m.TenantID, &m.Key, &m.Name, &m.Provider, &m.Task,
		&caps, &config, &enabled, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Capabilities = json.RawMessage(caps)
	m.Config = json.RawMessage(config)
	m.Enabled = enabled != 0
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func scanModelRow(row rowScanner) (*store.Model, error) {
	var m store.Model
	var caps, config, createdAt, updatedAt string
	var enabled int
	if err := row.Scan(&m.ID, &m.TenantID, &m.Key, &m.Name, &m.Provider, &m.Task,
		&caps, &config, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Capabilities = json.RawMessage(caps)
	m.Config = json.RawMessage(config)
	m.Enabled = enabled != 0
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}
