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

const revisionCols = `id, shard_id, tenant_id, revision, title, content, created_by, created_at`

func (d *DB) InsertRevision(ctx context.Context, r *store.ShardRevision) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO shard_revisions (`+revisionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ShardID, r.TenantID, r.Revision, r.Title,
		normalizeJSON(r.Content, "{}"), r.CreatedBy, formatTime(r.CreatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetRevision(ctx context.Context, tenantID, shardID string, revision int) (*store.ShardRevision, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+revisionCols+` FROM shard_revisions
		WHERE tenant_id = ? AND shard_id = ? AND revision = ?`,
		tenantID, shardID, revision)
	return scanRevision(row)
}

func (d *DB) ListRevisions(ctx context.Context, tenantID, shardID string) ([]store.ShardRevision, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+revisionCols+` FROM shard_revisions
		WHERE tenant_id = ? AND shard_id = ? ORDER BY revision DESC`,
		tenantID, shardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ShardRevision
	for rows.Next() {
		r, err := scanRevisionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (d *DB) DeleteRevisions(ctx context.Context, tenantID, shardID string) error {
	_, err := d.q.ExecContext(ctx,
		`DELETE FROM shard_revisions WHERE tenant_id = ? AND shard_id = ?`,
		tenantID, shardID)
	return err
}

func scanRevision(row *sql.Row) (*store.ShardRevision, error) {
	var r store.ShardRevision
	var content, createdAt string
	err := row.Scan(&r.ID, &r.ShardID, &r.TenantID, &r.Revision, &r.Title,
		&content, &r.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Content = json.RawMessage(content)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func scanRevisionRow(row rowScanner) (*store.ShardRevision, error) {
	var r store.ShardRevision
	var content, createdAt string
	if err := row.Scan(&r.ID, &r.ShardID, &r.TenantID, &r.Revision, &r.Title,
		&content, &r.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	r.Content = json.RawMessage(content)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
