package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

func (d *DB) CreateSession(ctx context.Context, s *store.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO sessions (id, tenant_id, user_id, ip, user_agent, created_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, s.UserID, s.IP, s.UserAgent,
		formatTime(s.CreatedAt), formatTime(s.ExpiresAt), formatTimePtr(s.RevokedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, ip, user_agent, created_at, expires_at, revoked_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (d *DB) RevokeSession(ctx context.Context, id string) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	// Revoking an already-revoked session is a no-op, not an error.
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := d.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) IsSessionRevoked(ctx context.Context, id string) (bool, error) {
	var revoked *string
	err := d.q.QueryRowContext(ctx,
		`SELECT revoked_at FROM sessions WHERE id = ?`, id,
	).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown sessions are treated as revoked: a token whose session
		// row is gone must not validate.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return revoked != nil, nil
}

func (d *DB) ListActiveSessions(ctx context.Context, tenantID string) ([]store.Session, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, ip, user_agent, created_at, expires_at, revoked_at
		FROM sessions
		WHERE tenant_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC`,
		tenantID, formatTime(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (d *DB) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanSession(row *sql.Row) (*store.Session, error) {
	var s store.Session
	var createdAt, expiresAt string
	var revokedAt *string
	err := row.Scan(&s.ID, &s.TenantID, &s.UserID, &s.IP, &s.UserAgent,
		&createdAt, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.ExpiresAt = parseTime(expiresAt)
	s.RevokedAt = parseTimePtr(revokedAt)
	return &s, nil
}

func scanSessionRow(row rowScanner) (*store.Session, error) {
	var s store.Session
	var createdAt, expiresAt string
	var revokedAt *string
	if err := row.Scan(&s.ID, &s.TenantID, &s.UserID, &s.IP, &s.UserAgent,
		&createdAt, &expiresAt, &revokedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.ExpiresAt = parseTime(expiresAt)
	s.RevokedAt = parseTimePtr(revokedAt)
	return &s, nil
}
