package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
)

// FlowManager orchestrates OAuth2 authorization code flows that connect
// external accounts (Gmail, Calendar, Drive) to a tenant's integrations.
type FlowManager struct {
	store       store.Store
	encryptor   *secrets.AgeEncryptor
	stateStore  *StateStore
	externalURL string
}

// NewFlowManager creates a FlowManager.
func NewFlowManager(s store.Store, enc *secrets.AgeEncryptor, externalURL string) *FlowManager {
	return &FlowManager{
		store:       s,
		encryptor:   enc,
		stateStore:  NewStateStore(),
		externalURL: strings.TrimRight(externalURL, "/"),
	}
}

// AuthorizeURL builds the OAuth2 authorization URL that starts connecting
// an integration.
func (fm *FlowManager) AuthorizeURL(ctx context.Context, tenantID, integrationID string) (string, error) {
	integ, err := fm.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return "", fmt.Errorf("get integration: %w", err)
	}

	provider, err := fm.store.GetProvider(ctx, tenantID, integ.ProviderID)
	if err != nil {
		return "", fmt.Errorf("get provider: %w", err)
	}

	var codeVerifier string
	if provider.UsePKCE {
		codeVerifier, err = GenerateCodeVerifier()
		if err != nil {
			return "", fmt.Errorf("generate pkce verifier: %w", err)
		}
	}

	state, err := fm.stateStore.Create(tenantID, integrationID, codeVerifier)
	if err != nil {
		return "", fmt.Errorf("create connect state: %w", err)
	}
	return fm.buildAuthorizeURL(provider, state, codeVerifier)
}

func (fm *FlowManager) buildAuthorizeURL(
	p *store.Provider, state, codeVerifier string,
) (string, error) {
	u, err := parseProviderURL(p.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", fm.CallbackURL())
	q.Set("state", state)

	var scopes []string
	if len(p.Scopes) > 0 {
		if err := json.Unmarshal(p.Scopes, &scopes); err != nil {
			return "", fmt.Errorf("parse provider scopes: %w", err)
		}
	}
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}

	if codeVerifier != "" {
		q.Set("code_challenge", CodeChallenge(codeVerifier))
		q.Set("code_challenge_method", "S256")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseProviderURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must use http or https")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url must include host")
	}
	return u, nil
}

// CallbackURL returns the full connect callback URL for this instance.
func (fm *FlowManager) CallbackURL() string {
	return fm.externalURL + "/api/v1/connect/callback"
}

// HandleCallback processes the OAuth2 callback, exchanging the code for
// tokens and marking the integration connected.
func (fm *FlowManager) HandleCallback(
	ctx context.Context, state, code string,
) (tenantID, integrationID string, err error) {
	entry, ok := fm.stateStore.Validate(state)
	if !ok {
		return "", "", fmt.Errorf("invalid or expired connect state")
	}

	integ, err := fm.store.GetIntegration(ctx, entry.TenantID, entry.IntegrationID)
	if err != nil {
		return "", "", fmt.Errorf("get integration: %w", err)
	}

	provider, err := fm.store.GetProvider(ctx, entry.TenantID, integ.ProviderID)
	if err != nil {
		return "", "", fmt.Errorf("get provider: %w", err)
	}

	clientSecret, err := fm.decryptClientSecret(provider)
	if err != nil {
		return "", "", err
	}

	td, err := fm.exchangeCode(ctx, provider, clientSecret, code, entry.CodeVerifier)
	if err != nil {
		if storeErr := fm.store.UpdateIntegrationTokenData(
			ctx, entry.TenantID, entry.IntegrationID, "error", nil,
		); storeErr != nil {
			return "", "", fmt.Errorf("exchange code: %v (mark error: %w)", err, storeErr)
		}
		return "", "", err
	}

	encrypted, err := fm.encryptTokenData(td)
	if err != nil {
		return "", "", err
	}

	if err := fm.store.UpdateIntegrationTokenData(
		ctx, entry.TenantID, entry.IntegrationID, "connected", encrypted,
	); err != nil {
		return "", "", fmt.Errorf("store token data: %w", err)
	}
	return entry.TenantID, entry.IntegrationID, nil
}
