package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const issuerName = "shardbase"

// ErrInvalidToken is returned for tokens that fail signature or claim
// validation, including expired tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is everything the API layer needs to know about a caller.
type Identity struct {
	UserID    string
	TenantID  string
	Role      Role
	SessionID string
	ExpiresAt time.Time
}

// Issuer signs and verifies access tokens. Tokens are HS256 JWTs carrying
// the tenant, role, and session of the login they were minted for.
type Issuer struct {
	key jwk.Key
	ttl time.Duration
}

// NewIssuer builds an Issuer from a shared signing secret. tokenTTL caps
// the lifetime of issued tokens; verification additionally honors the
// exp claim baked into each token.
func NewIssuer(secret []byte, tokenTTL time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: signing secret must be at least 32 bytes")
	}
	key, err := jwk.FromRaw(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: build signing key: %w", err)
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Issuer{key: key, ttl: tokenTTL}, nil
}

// Issue mints a signed token for the identity. The session ID becomes
// the jti claim so revoking the session kills every token minted for it.
func (i *Issuer) Issue(userID, tenantID string, role Role, sessionID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(i.ttl)
	tok, err := jwt.NewBuilder().
		Issuer(issuerName).
		Subject(userID).
		JwtID(sessionID).
		IssuedAt(now).
		Expiration(exp).
		Claim("tenant_id", tenantID).
		Claim("role", string(role)).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), exp, nil
}

// Verify checks the token's signature and standard claims and extracts
// the caller identity. It does not consult session revocation; that is
// the Validator's job.
func (i *Issuer) Verify(raw string) (Identity, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, i.key),
		jwt.WithIssuer(issuerName),
		jwt.WithValidate(true),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{
		UserID:    tok.Subject(),
		SessionID: tok.JwtID(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get("tenant_id"); ok {
		id.TenantID, _ = v.(string)
	}
	if v, ok := tok.Get("role"); ok {
		if s, ok := v.(string); ok {
			id.Role = Role(s)
		}
	}
	if id.UserID == "" || id.TenantID == "" || id.SessionID == "" || !id.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return id, nil
}
