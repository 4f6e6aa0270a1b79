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

const providerCols = `id, tenant_id, name, template_id, authorize_url, token_url, client_id, encrypted_client_secret, scopes, use_pkce, created_at, updated_at`

func (d *DB) CreateProvider(ctx context.Context, p *store.Provider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO providers (`+providerCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.TemplateID, p.AuthorizeURL, p.TokenURL,
		p.ClientID, p.EncryptedClientSecret, normalizeJSON(p.Scopes, "[]"),
		boolToInt(p.UsePKCE), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (d *DB) GetProvider(ctx context.Context, tenantID, id string) (*store.Provider, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+providerCols+` FROM providers WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	return scanProvider(row)
}

func (d *DB) ListProviders(ctx context.Context, tenantID string) ([]store.Provider, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+providerCols+` FROM providers WHERE tenant_id = ? ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Provider
	for rows.Next() {
		p, err := scanProviderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (d *DB) UpdateProvider(ctx context.Context, p *store.Provider) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := d.q.ExecContext(ctx, `
		UPDATE providers
		SET name = ?, template_id = ?, authorize_url = ?, token_url = ?,
		    client_id = ?, encrypted_client_secret = ?, scopes = ?, use_pkce = ?,
		    updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		p.Name, p.TemplateID, p.AuthorizeURL, p.TokenURL, p.ClientID,
		p.EncryptedClientSecret, normalizeJSON(p.Scopes, "[]"),
		boolToInt(p.UsePKCE), formatTime(p.UpdatedAt), p.TenantID, p.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeleteProvider(ctx context.Context, tenantID, id string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM providers WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanProvider(row *sql.Row) (*store.Provider, error) {
	var p store.Provider
	var scopes, createdAt, updatedAt string
	var usePKCE int
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.TemplateID, &p.AuthorizeURL,
		&p.TokenURL, &p.ClientID, &p.EncryptedClientSecret, &scopes, &usePKCE,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Scopes = json.RawMessage(scopes)
	p.UsePKCE = usePKCE != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanProviderRow(row rowScanner) (*store.Provider, error) {
	var p store.Provider
	var scopes, createdAt, updatedAt string
	var usePKCE int
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.TemplateID, &p.AuthorizeURL,
		&p.TokenURL, &p.ClientID, &p.EncryptedClientSecret, &scopes, &usePKCE,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Scopes = json.RawMessage(scopes)
	p.UsePKCE = usePKCE != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
