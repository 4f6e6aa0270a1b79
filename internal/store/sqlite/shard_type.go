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

const shardTypeCols = `id, tenant_id, key, name, description, schema, icon, system, created_at, updated_at`

func (d *DB) CreateShardType(ctx context.Context, st *store.ShardType) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO shard_types (`+shardTypeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.TenantID, st.Key, st.Name, st.Description,
		normalizeJSON(st.Schema, "{}"), st.Icon, boolToInt(st.System),
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetShardType(ctx context.Context, tenantID, id string) (*store.ShardType, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+shardTypeCols+` FROM shard_types WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanShardType(row)
}

func (d *DB) GetShardTypeByKey(ctx context.Context, tenantID, key string) (*store.ShardType, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+shardTypeCols+` FROM shard_types WHERE tenant_id = ? AND key = ?`,
		tenantID, key)
	return scanShardType(row)
}

func (d *DB) ListShardTypes(ctx context.Context, tenantID string) ([]store.ShardType, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+shardTypeCols+` FROM shard_types WHERE tenant_id = ? ORDER BY key`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ShardType
	for rows.Next() {
		st, err := scanShardTypeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (d *DB) UpdateShardType(ctx context.Context, st *store.ShardType) error {
	st.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE shard_types
		SET key = ?, name = ?, description = ?, schema = ?, icon = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		st.Key, st.Name, st.Description, normalizeJSON(st.Schema, "{}"),
		st.Icon, formatTime(st.UpdatedAt), st.TenantID, st.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteShardType(ctx context.Context, tenantID, id string) error {
	// System types are seeded and protected.
	res, err := d.q.ExecContext(ctx, `
		DELETE FROM shard_types WHERE tenant_id = ? AND id = ? AND system = 0`,
		tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanShardType(row *sql.Row) (*store.ShardType, error) {
	var st store.ShardType
	var schema, createdAt, updatedAt string
	var system int
	err := row.Scan(&st.ID, &st.TenantID, &st.Key, &st.Name, &st.Description,
		&schema, &st.Icon, &system, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Schema = json.RawMessage(schema)
	st.System = system != 0
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

func scanShardTypeRow(row rowScanner) (*store.ShardType, error) {
	var st store.ShardType
	var schema, createdAt, updatedAt string
	var system int
	if err := row.Scan(&st.ID, &st.TenantID, &st.Key, &st.Name, &st.Description,
		&schema, &st.Icon, &system, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.Schema = json.RawMessage(schema)
	st.System = system != 0
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}
