package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shardlabs/shardbase/internal/cache"
)

// SessionChecker reports whether a session has been revoked. Satisfied
// by the session store.
type SessionChecker interface {
	IsSessionRevoked(ctx context.Context, id string) (bool, error)
}

// ErrSessionRevoked is returned for structurally valid tokens whose
// session has been revoked.
var ErrSessionRevoked = errors.New("auth: session revoked")

// Validator validates bearer tokens, caching verification results so
// repeated requests with the same token skip the signature check.
// Session revocation is checked against the store on every call, cache
// hit or not, so a revoked session takes effect immediately.
type Validator struct {
	issuer   *Issuer
	sessions SessionChecker
	cache    *cache.Cache[string, Identity]
}

// NewValidator wires an Issuer to the session store. cacheSize and
// cacheTTL bound the verification cache; the TTL is also capped by each
// token's own expiry.
func NewValidator(issuer *Issuer, sessions SessionChecker, cacheSize int, cacheTTL time.Duration) *Validator {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Validator{
		issuer:   issuer,
		sessions: sessions,
		cache:    cache.New[string, Identity](cacheSize, cacheTTL),
	}
}

// Validate returns the identity behind a bearer token, or an error if
// the token is invalid, expired, or its session has been revoked.
func (v *Validator) Validate(ctx context.Context, raw string) (Identity, error) {
	key := tokenKey(raw)

	id, err := v.cache.GetOrLoad(ctx, key, func(context.Context) (Identity, error) {
		return v.issuer.Verify(raw)
	})
	if err != nil {
		return Identity{}, err
	}

	// Cached entries can outlive the token; re-check expiry cheaply.
	if time.Now().After(id.ExpiresAt) {
		v.cache.Delete(key)
		return Identity{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	revoked, err := v.sessions.IsSessionRevoked(ctx, id.SessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: check session: %w", err)
	}
	if revoked {
		v.cache.Delete(key)
		return Identity{}, ErrSessionRevoked
	}
	return id, nil
}

// CacheStats exposes verification cache counters for the dashboard.
func (v *Validator) CacheStats() cache.Stats {
	return v.cache.Stats()
}

// Sweep removes expired cache entries. Run periodically.
func (v *Validator) Sweep() int {
	return v.cache.RemoveExpired()
}

func tokenKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
