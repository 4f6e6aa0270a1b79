package store

import (
	"context"
	"time"
)

// Store is the composite interface for all data access.
type Store interface {
	TenantStore
	UserStore
	SessionStore
	ShardTypeStore
	CollectionStore
	ShardStore
	RevisionStore
	WebhookStore
	AuditStore
	ModelStore
	ProviderStore
	IntegrationStore
	UploadStore
	Tx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// TenantStore manages tenant records.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	UpdateTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, id string) error
}

// UserStore manages user records.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	ListUsers(ctx context.Context, tenantID string) ([]User, error)
	UpdateUser(ctx context.Context, u *User) error
	TouchUserLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore manages login sessions. Revocation is the token blacklist.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string) error
	IsSessionRevoked(ctx context.Context, id string) (bool, error)
	ListActiveSessions(ctx context.Context, tenantID string) ([]Session, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// ShardTypeStore manages shard type records.
type ShardTypeStore interface {
	CreateShardType(ctx context.Context, st *ShardType) error
	GetShardType(ctx context.Context, tenantID, id string) (*ShardType, error)
	GetShardTypeByKey(ctx context.Context, tenantID, key string) (*ShardType, error)
	ListShardTypes(ctx context.Context, tenantID string) ([]ShardType, error)
	UpdateShardType(ctx context.Context, st *ShardType) error
	DeleteShardType(ctx context.Context, tenantID, id string) error
}

// CollectionStore manages collection records.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c *Collection) error
	GetCollection(ctx context.Context, tenantID, id string) (*Collection, error)
	ListCollections(ctx context.Context, tenantID string) ([]Collection, error)
	UpdateCollection(ctx context.Context, c *Collection) error
	DeleteCollection(ctx context.Context, tenantID, id string) error
}

// ShardStore manages shard records.
type ShardStore interface {
	CreateShard(ctx context.Context, s *Shard) error
	GetShard(ctx context.Context, tenantID, id string) (*Shard, error)
	ListShards(ctx context.Context, tenantID string, f ShardFilter) ([]Shard, int, error)
	UpdateShard(ctx context.Context, s *Shard) error
	DeleteShard(ctx context.Context, tenantID, id string) error
	CountShardsByType(ctx context.Context, tenantID string) (map[string]int, error)
}

// RevisionStore manages immutable shard revisions.
type RevisionStore interface {
	InsertRevision(ctx context.Context, r *ShardRevision) error
	GetRevision(ctx context.Context, tenantID, shardID string, revision int) (*ShardRevision, error)
	ListRevisions(ctx context.Context, tenantID, shardID string) ([]ShardRevision, error)
	DeleteRevisions(ctx context.Context, tenantID, shardID string) error
}

// WebhookStore manages webhooks and their delivery records.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *Webhook) error
	GetWebhook(ctx context.Context, tenantID, id string) (*Webhook, error)
	ListWebhooks(ctx context.Context, tenantID string) ([]Webhook, error)
	ListActiveWebhooks(ctx context.Context, tenantID string) ([]Webhook, error)
	UpdateWebhook(ctx context.Context, w *Webhook) error
	DeleteWebhook(ctx context.Context, tenantID, id string) error

	InsertWebhookDelivery(ctx context.Context, d *WebhookDelivery) error
	UpdateWebhookDelivery(ctx context.Context, d *WebhookDelivery) error
	ListWebhookDeliveries(ctx context.Context, tenantID, webhookID string, limit int) ([]WebhookDelivery, error)
}

// AuditStore manages audit log records and dashboard aggregates.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, r *AuditRecord) error
	QueryAuditRecords(ctx context.Context, f AuditFilter) ([]AuditRecord, int, error)
	GetAuditStats(ctx context.Context, tenantID string, after, before time.Time) (*AuditStats, error)
	GetActivityTimeSeries(ctx context.Context, tenantID string, after, before time.Time, bucketSec int) ([]TimeSeriesPoint, error)
	GetTypeActivity(ctx context.Context, tenantID string, after, before time.Time, limit int) ([]TypeActivityEntry, error)
}

// ModelStore manages the AI model catalog.
type ModelStore interface {
	CreateModel(ctx context.Context, m *Model) error
	GetModel(ctx context.Context, tenantID, id string) (*Model, error)
	GetModelByKey(ctx context.Context, tenantID, key string) (*Model, error)
	ListModels(ctx context.Context, tenantID string) ([]Model, error)
	UpdateModel(ctx context.Context, m *Model) error
	DeleteModel(ctx context.Context, tenantID, id string) error
}

// ProviderStore manages OAuth provider configurations.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, tenantID, id string) (*Provider, error)
	ListProviders(ctx context.Context, tenantID string) ([]Provider, error)
	UpdateProvider(ctx context.Context, p *Provider) error
	DeleteProvider(ctx context.Context, tenantID, id string) error
}

// IntegrationStore manages connected integration accounts.
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, i *Integration) error
	GetIntegration(ctx context.Context, tenantID, id string) (*Integration, error)
	ListIntegrations(ctx context.Context, tenantID string) ([]Integration, error)
	UpdateIntegration(ctx context.Context, i *Integration) error
	UpdateIntegrationTokenData(ctx context.Context, tenantID, id string, status string, data []byte) error
	DeleteIntegration(ctx context.Context, tenantID, id string) error
}

// UploadStore manages chunked upload sessions.
type UploadStore interface {
	CreateUploadSession(ctx context.Context, u *UploadSession) error
	GetUploadSession(ctx context.Context, tenantID, id string) (*UploadSession, error)
	UpdateUploadSession(ctx context.Context, u *UploadSession) error
	DeleteStaleUploadSessions(ctx context.Context, before time.Time) (int, error)
}
