package store

import (
	"encoding/json"
	"time"
)

// Tenant is a customer organization. All other records are scoped to one.
type Tenant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// User is a member of a tenant. Users are provisioned just-in-time on
// first SSO login and carry a single role.
type User struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"` // "viewer", "editor", "admin"
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Session is an authenticated login session. A session ID appears as the
// jti claim of every token issued for it; revoking the session invalidates
// all such tokens.
type Session struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	IP        string     `json:"ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ShardType describes a kind of shard (document, task, note, ...).
// The Key is the stable identifier events and filters use, e.g. "c_document".
type ShardType struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	System      bool            `json:"system"` // seeded types cannot be deleted
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Collection groups shards within a tenant.
type Collection struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tags        json.RawMessage `json:"tags,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Shard is a single document. Content is an opaque JSON body validated
// against the shard type's schema by the producer, not the store.
type Shard struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	CollectionID string          `json:"collection_id"`
	ShardTypeID  string          `json:"shard_type_id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content,omitempty"`
	Status       string          `json:"status"` // "draft", "published", "archived"
	Revision     int             `json:"revision"`
	CreatedBy    string          `json:"created_by"`
	UpdatedBy    string          `json:"updated_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ShardRevision is an immutable snapshot of a shard taken before each update.
type ShardRevision struct {
	ID        string          `json:"id"`
	ShardID   string          `json:"shard_id"`
	TenantID  string          `json:"tenant_id"`
	Revision  int             `json:"revision"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// ShardFilter specifies query parameters for listing shards.
type ShardFilter struct {
	CollectionID *string `json:"collection_id,omitempty"`
	ShardTypeID  *string `json:"shard_type_id,omitempty"`
	Status       *string `json:"status,omitempty"`
	Search       *string `json:"search,omitempty"` // substring match on title
	Limit        int     `json:"limit"`
	Offset       int     `json:"offset"`
}

// Webhook is an outbound event subscription. EventTypes and ShardTypeIDs
// mirror the live-stream subscription filter semantics: empty means all.
type Webhook struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	EncryptedSecret []byte          `json:"-"`
	EventTypes      json.RawMessage `json:"event_types,omitempty"`
	ShardTypeIDs    json.RawMessage `json:"shard_type_ids,omitempty"`
	TransformScript string          `json:"transform_script,omitempty"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WebhookDelivery records one delivery attempt chain for a webhook.
type WebhookDelivery struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhook_id"`
	TenantID    string     `json:"tenant_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"-"`
	Status      string     `json:"status"` // "pending", "delivered", "failed"
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	LastCode    int        `json:"last_code,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuditRecord is a single audit log entry for an API mutation.
type AuditRecord struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id,omitempty"`
	Action       string          `json:"action"` // e.g. "shard.update"
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	Status       string          `json:"status"` // "ok" or "error"
	ErrorMessage string          `json:"error_message,omitempty"`
	LatencyMs    int             `json:"latency_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditFilter specifies query parameters for listing audit records.
type AuditFilter struct {
	TenantID   string     `json:"tenant_id"`
	UserID     *string    `json:"user_id,omitempty"`
	Action     *string    `json:"action,omitempty"`
	EntityType *string    `json:"entity_type,omitempty"`
	Status     *string    `json:"status,omitempty"`
	After      *time.Time `json:"after,omitempty"`
	Before     *time.Time `json:"before,omitempty"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// AuditStats holds aggregate statistics over a time window.
type AuditStats struct {
	TotalActions int     `json:"total_actions"`
	OKCount      int     `json:"ok_count"`
	ErrorCount   int     `json:"error_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ActiveUsers  int     `json:"active_users"`
}

// TimeSeriesPoint holds time-bucketed activity counts for dashboards.
type TimeSeriesPoint struct {
	Bucket time.Time `json:"bucket"`
	Total  int       `json:"total"`
	Errors int       `json:"errors"`
	Users  int       `json:"users"`
}

// TypeActivityEntry ranks shard types by mutation volume.
type TypeActivityEntry struct {
	ShardTypeID string `json:"shard_type_id"`
	Count       int    `json:"count"`
	Errors      int    `json:"errors"`
}

// Model is an entry in the AI model catalog.
type Model struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"` // empty for built-in catalog entries
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	Provider     string          `json:"provider"` // "builtin", "openai", ...
	Task         string          `json:"task"`     // "scoring", "forecast", "anomaly", ...
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Provider stores OAuth2 app configuration for integration connectors.
type Provider struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"tenant_id"`
	Name                  string          `json:"name"`
	TemplateID            string          `json:"template_id"`
	AuthorizeURL          string          `json:"authorize_url"`
	TokenURL              string          `json:"token_url"`
	ClientID              string          `json:"client_id"`
	EncryptedClientSecret []byte          `json:"-"`
	Scopes                json.RawMessage `json:"scopes,omitempty"`
	UsePKCE               bool            `json:"use_pkce"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Integration is a connected external account (Gmail, Calendar, Drive, ...)
// owned by a tenant. Token data is age-encrypted at rest.
type Integration struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ProviderID  string    `json:"provider_id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`   // "gmail", "calendar", "drive", "generic"
	Status      string    `json:"status"` // "pending", "connected", "error"
	AccountHint string    `json:"account_hint,omitempty"`
	TokenData   []byte    `json:"-"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TokenData holds decrypted OAuth2 token information for an integration.
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// UploadSession tracks a chunked attachment upload in progress.
type UploadSession struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	ShardID       string     `json:"shard_id"`
	FileName      string     `json:"file_name"`
	ContentType   string     `json:"content_type,omitempty"`
	DeclaredSize  int64      `json:"declared_size"`
	ReceivedBytes int64      `json:"received_bytes"`
	Status        string     `json:"status"` // "open", "complete", "aborted"
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
