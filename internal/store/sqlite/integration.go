package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shardlabs/shardbase/internal/store"
)

const integrationCols = `id, tenant_id, provider_id, name, kind, status, account_hint, token_data, created_by, created_at, updated_at`

func (d *DB) CreateIntegration(ctx context.Context, i *store.Integration) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = "pending"
	}
	if i.Kind == "" {
		i.Kind = "generic"
	}
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO integrations (`+integrationCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.TenantID, i.ProviderID, i.Name, i.Kind, i.Status,
		i.AccountHint, i.TokenData, i.CreatedBy,
		formatTime(i.CreatedAt), formatTime(i.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetIntegration(ctx context.Context, tenantID, id string) (*store.Integration, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+integrationCols+` FROM integrations WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanIntegration(row)
}

func (d *DB) ListIntegrations(ctx context.Context, tenantID string) ([]store.Integration, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+integrationCols+` FROM integrations WHERE tenant_id = ? ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Integration
	for rows.Next() {
		i, err := scanIntegrationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (d *DB) UpdateIntegration(ctx context.Context, i *store.Integration) error {
	i.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE integrations
		SET name = ?, kind = ?, status = ?, account_hint = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		i.Name, i.Kind, i.Status, i.AccountHint, formatTime(i.UpdatedAt),
		i.TenantID, i.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) UpdateIntegrationTokenData(ctx context.Context, tenantID, id string, status string, data []byte) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE integrations SET status = ?, token_data = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		status, data, formatTime(time.Now().UTC()), tenantID, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteIntegration(ctx context.Context, tenantID, id string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM integrations WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanIntegration(row *sql.Row) (*store.Integration, error) {
	var i store.Integration
	var createdAt, updatedAt string
	err := row.Scan(&i.ID, &i.TenantID, &i.ProviderID, &i.Name, &i.Kind,
		&i.Status, &i.AccountHint, &i.TokenData, &i.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return &i, nil
}

func scanIntegrationRow(row rowScanner) (*store.Integration, error) {
	var i store.Integration
	var createdAt, updatedAt string
	if err := row.Scan(&i.ID, &i.TenantID, &i.ProviderID, &i.Name, &i.Kind,
		&i.Status, &i.AccountHint, &i.TokenData, &i.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return &i, nil
}
