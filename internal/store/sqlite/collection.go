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

const collectionCols = `id, tenant_id, name, description, tags, created_by, created_at, updated_at`

func (d *DB) CreateCollection(ctx context.Context, c *store.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO collections (`+collectionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Description, normalizeJSON(c.Tags, "[]"),
		c.CreatedBy, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetCollection(ctx context.Context, tenantID, id string) (*store.Collection, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+collectionCols+` FROM collections WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanCollection(row)
}

func (d *DB) ListCollections(ctx context.Context, tenantID string) ([]store.Collection, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+collectionCols+` FROM collections WHERE tenant_id = ? ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Collection
	for rows.Next() {
		c, err := scanCollectionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (d *DB) UpdateCollection(ctx context.Context, c *store.Collection) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE collections
		SET name = ?, description = ?, tags = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		c.Name, c.Description, normalizeJSON(c.Tags, "[]"),
		formatTime(c.UpdatedAt), c.TenantID, c.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteCollection(ctx context.Context, tenantID, id string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM collections WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanCollection(row *sql.Row) (*store.Collection, error) {
	var c store.Collection
	var tags, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &tags,
		&c.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Tags = json.RawMessage(tags)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func scanCollectionRow(row rowScanner) (*store.Collection, error) {
	var c store.Collection
	var tags, createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &tags,
		&c.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Tags = json.RawMessage(tags)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
