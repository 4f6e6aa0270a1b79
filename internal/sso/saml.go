package sso

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/store"
)

// CookieName is the session cookie set after a successful SSO login.
const CookieName = "shardbase_session"

// Config holds the SAML service provider settings for one tenant's IdP.
type Config struct {
	TenantSlug      string
	ExternalURL     string
	IDPMetadataURL  string
	IDPMetadataFile string
	CertFile        string
	KeyFile         string
	SessionTTL      time.Duration
	// DefaultRole is assigned to users provisioned on first login when
	// the IdP sends no role attribute.
	DefaultRole auth.Role
}

// Service terminates SAML logins: it validates assertions, provisions
// users on first login, opens a session, and hands the browser a signed
// token cookie.
type Service struct {
	store      store.Store
	issuer     *auth.Issuer
	logger     *slog.Logger
	middleware *samlsp.Middleware
	cfg        Config
}

// New builds the SAML middleware from cfg and wires it to the store.
func New(ctx context.Context, s store.Store, issuer *auth.Issuer, logger *slog.Logger, cfg Config) (*Service, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = auth.RoleViewer
	}
	if logger == nil {
		logger = slog.Default()
	}

	keyPair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("sso: load sp keypair: %w", err)
	}
	cert, err := x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("sso: parse sp certificate: %w", err)
	}
	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sso: sp key must be RSA")
	}

	idpMetadata, err := loadIDPMetadata(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rootURL, err := url.Parse(cfg.ExternalURL)
	if err != nil {
		return nil, fmt.Errorf("sso: parse external url: %w", err)
	}

	mw, err := samlsp.New(samlsp.Options{
		URL:         *rootURL,
		Key:         key,
		Certificate: cert,
		IDPMetadata: idpMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("sso: build service provider: %w", err)
	}

	svc := &Service{
		store:      s,
		issuer:     issuer,
		logger:     logger,
		middleware: mw,
		cfg:        cfg,
	}
	mw.Session = svc
	return svc, nil
}

func loadIDPMetadata(ctx context.Context, cfg Config) (*saml.EntityDescriptor, error) {
	if cfg.IDPMetadataFile != "" {
		data, err := os.ReadFile(cfg.IDPMetadataFile)
		if err != nil {
			return nil, fmt.Errorf("sso: read idp metadata: %w", err)
		}
		md, err := samlsp.ParseMetadata(data)
		if err != nil {
			return nil, fmt.Errorf("sso: parse idp metadata: %w", err)
		}
		return md, nil
	}

	mdURL, err := url.Parse(cfg.IDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("sso: parse idp metadata url: %w", err)
	}
	md, err := samlsp.FetchMetadata(ctx, http.DefaultClient, *mdURL)
	if err != nil {
		return nil, fmt.Errorf("sso: fetch idp metadata: %w", err)
	}
	return md, nil
}

// Handler returns the SP endpoints (metadata, ACS) to mount under /saml/.
func (s *Service) Handler() http.Handler {
	return s.middleware
}

// StartLogin initiates the redirect to the IdP.
func (s *Service) StartLogin(w http.ResponseWriter, r *http.Request) {
	s.middleware.HandleStartAuthFlow(w, r)
}

// CreateSession is called by the SAML middleware once an assertion has
// been validated. It provisions the user if needed, opens a session,
// and sets the token cookie.
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request, assertion *saml.Assertion) error {
	ctx := r.Context()

	tenant, err := s.store.GetTenantBySlug(ctx, s.cfg.TenantSlug)
	if err != nil {
		return fmt.Errorf("sso: resolve tenant %q: %w", s.cfg.TenantSlug, err)
	}

	email := attributeValue(assertion, "email", "mail", "urn:oid:0.9.2342.19200300.100.1.3")
	if email == "" && assertion.Subject != nil && assertion.Subject.NameID != nil {
		email = assertion.Subject.NameID.Value
	}
	if email == "" {
		return fmt.Errorf("sso: assertion carries no email")
	}

	user, err := s.provisionUser(ctx, tenant.ID, email, assertion)
	if err != nil {
		return err
	}

	session := &store.Session{
		TenantID:  tenant.ID,
		UserID:    user.ID,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		ExpiresAt: time.Now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("sso: create session: %w", err)
	}

	token, exp, err := s.issuer.Issue(user.ID, tenant.ID, auth.Role(user.Role), session.ID)
	if err != nil {
		return fmt.Errorf("sso: issue token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("sso login",
		"tenant_id", tenant.ID, "user_id", user.ID, "session_id", session.ID)
	return nil
}

// DeleteSession clears the token cookie.
func (s *Service) DeleteSession(w http.ResponseWriter, _ *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return nil
}

// GetSession reports whether the request already carries a valid token
// cookie, so the middleware can skip re-authentication.
func (s *Service) GetSession(r *http.Request) (samlsp.Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, samlsp.ErrNoSession
	}
	id, err := s.issuer.Verify(c.Value)
	if err != nil {
		return nil, samlsp.ErrNoSession
	}
	return tokenSession{identity: id}, nil
}

// provisionUser finds the user by email or creates one just-in-time on
// first login.
func (s *Service) provisionUser(ctx context.Context, tenantID, email string, assertion *saml.Assertion) (*store.User, error) {
	now := time.Now().UTC()

	user, err := s.store.GetUserByEmail(ctx, tenantID, email)
	if err == nil {
		if terr := s.store.TouchUserLogin(ctx, user.ID, now); terr != nil {
			s.logger.Warn("touch user login", "user_id", user.ID, "error", terr)
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("sso: look up user: %w", err)
	}

	role := s.cfg.DefaultRole
	if attr := auth.Role(attributeValue(assertion, "role")); attr.Valid() {
		role = attr
	}
	displayName := attributeValue(assertion, "displayName", "name", "cn")
	if displayName == "" {
		displayName = email
	}

	user = &store.User{
		TenantID:    tenantID,
		Email:       email,
		DisplayName: displayName,
		Role:        string(role),
		LastLoginAt: &now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("sso: provision user: %w", err)
	}
	s.logger.Info("provisioned user from sso", "tenant_id", tenantID, "email", email, "role", role)
	return user, nil
}

// attributeValue returns the first non-empty assertion attribute whose
// name (or friendly name) matches one of names.
func attributeValue(assertion *saml.Assertion, names ...string) string {
	if assertion == nil {
		return ""
	}
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			for _, name := range names {
				if attr.Name != name && attr.FriendlyName != name {
					continue
				}
				for _, v := range attr.Values {
					if v.Value != "" {
						return v.Value
					}
				}
			}
		}
	}
	return ""
}

type tokenSession struct {
	identity auth.Identity
}

// GetAttributes satisfies samlsp.SessionWithAttributes.
func (t tokenSession) GetAttributes() samlsp.Attributes {
	return samlsp.Attributes{
		"user_id":   []string{t.identity.UserID},
		"tenant_id": []string{t.identity.TenantID},
		"role":      []string{string(t.identity.Role)},
	}
}
