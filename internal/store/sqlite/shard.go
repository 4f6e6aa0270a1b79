package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

const shardCols = `id, tenant_id, collection_id, shard_type_id, title, content, status, revision, created_by, updated_by, created_at, updated_at`

func (d *DB) CreateShard(ctx context.Context, s *store.Shard) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = "draft"
	}
	s.Revision = 1
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO shards (`+shardCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, s.CollectionID, s.ShardTypeID, s.Title,
		normalizeJSON(s.Content, "{}"), s.Status, s.Revision,
		s.CreatedBy, s.UpdatedBy, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetShard(ctx context.Context, tenantID, id string) (*store.Shard, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+shardCols+` FROM shards WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanShard(row)
}

func (d *DB) ListShards(ctx context.Context, tenantID string, f store.ShardFilter) ([]store.Shard, int, error) {
	where := "WHERE tenant_id = ?"
	args := []any{tenantID}

	if f.CollectionID != nil {
		where += " AND collection_id = ?"
		args = append(args, *f.CollectionID)
	}
	if f.ShardTypeID != nil {
		where += " AND shard_type_id = ?"
		args = append(args, *f.ShardTypeID)
	}
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.Search != nil {
		where += " AND title LIKE ?"
		args = append(args, "%"+*f.Search+"%")
	}

	var total int
	if err := d.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM shards "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shards: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM shards %s ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		shardCols, where,
	)
	args = append(args, limit, f.Offset)

	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.Shard
	for rows.Next() {
		s, err := scanShardRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// UpdateShard writes the new state and bumps the revision counter. The
// revision check makes concurrent updates lose cleanly with ErrConflict.
func (d *DB) UpdateShard(ctx context.Context, s *store.Shard) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE shards
		SET title = ?, content = ?, status = ?, revision = revision + 1,
		    updated_by = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND revision = ?`,
		s.Title, normalizeJSON(s.Content, "{}"), s.Status,
		s.UpdatedBy, formatTime(s.UpdatedAt), s.TenantID, s.ID, s.Revision,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := d.GetShard(ctx, s.TenantID, s.ID); err != nil {
			return err
		}
		return store.ErrConflict
	}
	s.Revision++
	return nil
}

func (d *DB) DeleteShard(ctx context.Context, tenantID, id string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM shards WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) CountShardsByType(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT shard_type_id, COUNT(*) FROM shards
		WHERE tenant_id = ? GROUP BY shard_type_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typeID string
		var n int
		if err := rows.Scan(&typeID, &n); err != nil {
			return nil, err
		}
		out[typeID] = n
	}
	return out, rows.Err()
}

func scanShard(row *sql.Row) (*store.Shard, error) {
	var s store.Shard
	var content, createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.TenantID, &s.CollectionID, &s.ShardTypeID,
		&s.Title, &content, &s.Status, &s.Revision,
		&s.CreatedBy, &s.UpdatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Content = json.RawMessage(content)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func scanShardRow(row rowScanner) (*store.Shard, error) {
	var s store.Shard
	var content, createdAt, updatedAt string
	if err := row.Scan(&s.ID, &s.TenantID, &s.CollectionID, &s.ShardTypeID,
		&s.Title, &content, &s.Status, &s.Revision,
		&s.CreatedBy, &s.UpdatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Content = json.RawMessage(content)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}
