package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

func (d *DB) CreateUser(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "viewer"
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, display_name, role, last_login_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.DisplayName, u.Role,
		formatTimePtr(u.LastLoginAt), formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*store.User, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, display_name, role, last_login_at, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (d *DB) GetUserByEmail(ctx context.Context, tenantID, email string) (*store.User, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, display_name, role, last_login_at, created_at, updated_at
		FROM users WHERE tenant_id = ? AND email = ?`, tenantID, email)
	return scanUser(row)
}

func (d *DB) ListUsers(ctx context.Context, tenantID string) ([]store.User, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT id, tenant_id, email, display_name, role, last_login_at, created_at, updated_at
		FROM users WHERE tenant_id = ? ORDER BY email`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (d *DB) UpdateUser(ctx context.Context, u *store.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE users SET email = ?, display_name = ?, role = ?, updated_at = ?
		WHERE id = ?`,
		u.Email, u.DisplayName, u.Role, formatTime(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) TouchUserLogin(ctx context.Context, id string, at time.Time) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE users SET last_login_at = ? WHERE id = ?`,
		formatTime(at), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := d.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var lastLogin *string
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.Role,
		&lastLogin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.LastLoginAt = parseTimePtr(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func scanUserRow(row rowScanner) (*store.User, error) {
	var u store.User
	var lastLogin *string
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.Role,
		&lastLogin, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.LastLoginAt = parseTimePtr(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}
