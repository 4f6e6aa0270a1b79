package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

const uploadCols = `id, tenant_id, shard_id, file_name, content_type, declared_size, received_bytes, status, created_by, created_at, completed_at`

func (d *DB) CreateUploadSession(ctx context.Context, u *store.UploadSession) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = "open"
	}
	u.CreatedAt = time.Now().UTC()

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO upload_sessions (`+uploadCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.ShardID, u.FileName, u.ContentType,
		u.DeclaredSize, u.ReceivedBytes, u.Status, u.CreatedBy,
		formatTime(u.CreatedAt), formatTimePtr(u.CompletedAt),
	)
	return err
}

func (d *DB) GetUploadSession(ctx context.Context, tenantID, id string) (*store.UploadSession, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+uploadCols+` FROM upload_sessions WHERE tenant_id = ? AND id = ?`,
		tenantID, id)

	var u store.UploadSession
	var createdAt string
	var completedAt *string
	err := row.Scan(&u.ID, &u.TenantID, &u.ShardID, &u.FileName, &u.ContentType,
		&u.DeclaredSize, &u.ReceivedBytes, &u.Status, &u.CreatedBy,
		&createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.CompletedAt = parseTimePtr(completedAt)
	return &u, nil
}

func (d *DB) UpdateUploadSession(ctx context.Context, u *store.UploadSession) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE upload_sessions
		SET received_bytes = ?, status = ?, completed_at = ?
		WHERE tenant_id = ? AND id = ?`,
		u.ReceivedBytes, u.Status, formatTimePtr(u.CompletedAt), u.TenantID, u.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteStaleUploadSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE status = 'open' AND created_at < ?`,
		formatTime(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
