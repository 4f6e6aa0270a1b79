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

func (d *DB) CreateTenant(ctx context.Context, t *store.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, normalizeJSON(t.Settings, "{}"),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetTenant(ctx context.Context, id string) (*store.Tenant, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT id, name, slug, settings, created_at, updated_at
		FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

func (d *DB) GetTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT id, name, slug, settings, created_at, updated_at
		FROM tenants WHERE slug = ?`, slug)
	return scanTenant(row)
}

func (d *DB) ListTenants(ctx context.Context) ([]store.Tenant, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT id, name, slug, settings, created_at, updated_at
		FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (d *DB) UpdateTenant(ctx context.Context, t *store.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE tenants SET name = ?, slug = ?, settings = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Slug, normalizeJSON(t.Settings, "{}"),
		formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteTenant(ctx context.Context, id string) error {
	res, err := d.q.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanTenant(row *sql.Row) (*store.Tenant, error) {
	var t store.Tenant
	var settings, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &settings, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Settings = json.RawMessage(settings)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanTenantRow(row rowScanner) (*store.Tenant, error) {
	var t store.Tenant
	var settings, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &settings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Settings = json.RawMessage(settings)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
