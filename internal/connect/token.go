package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shardlabs/shardbase/internal/store"
)

// tokenResponse is the JSON response from an OAuth2 token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

func (fm *FlowManager) exchangeCode(
	ctx context.Context, p *store.Provider,
	clientSecret, code, codeVerifier string,
) (*store.TokenData, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {fm.CallbackURL()},
		"client_id":    {p.ClientID},
	}
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	return fm.postToken(ctx, p.TokenURL, form)
}

// RefreshToken refreshes an expired access token using the stored
// refresh token and persists the result.
func (fm *FlowManager) RefreshToken(
	ctx context.Context, tenantID, integrationID string,
) (*store.TokenData, error) {
	integ, err := fm.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}

	provider, err := fm.store.GetProvider(ctx, tenantID, integ.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}

	existing, err := fm.decryptTokenData(integ.TokenData)
	if err != nil {
		return nil, fmt.Errorf("decrypt stored tokens: %w", err)
	}
	if existing.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	clientSecret, err := fm.decryptClientSecret(provider)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {existing.RefreshToken},
		"client_id":     {provider.ClientID},
	}
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}

	td, err := fm.postToken(ctx, provider.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	// Preserve refresh token if the new response doesn't include one.
	if td.RefreshToken == "" {
		td.RefreshToken = existing.RefreshToken
	}

	encrypted, err := fm.encryptTokenData(td)
	if err != nil {
		return nil, err
	}
	if err := fm.store.UpdateIntegrationTokenData(
		ctx, tenantID, integrationID, "connected", encrypted,
	); err != nil {
		return nil, fmt.Errorf("store refreshed tokens: %w", err)
	}
	return td, nil
}

// TokenStatus returns the current status of an integration's token:
// "none", "valid", "expired", or "refresh_needed".
func (fm *FlowManager) TokenStatus(
	ctx context.Context, tenantID, integrationID string,
) (status string, expiresAt *time.Time, err error) {
	integ, err := fm.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return "", nil, fmt.Errorf("get integration: %w", err)
	}
	if len(integ.TokenData) == 0 {
		return "none", nil, nil
	}

	td, err := fm.decryptTokenData(integ.TokenData)
	if err != nil {
		return "", nil, fmt.Errorf("decrypt token data: %w", err)
	}

	exp := td.ExpiresAt

	// Zero ExpiresAt means the provider didn't supply expires_in.
	// Treat these tokens as non-expiring.
	if exp.IsZero() {
		return "valid", nil, nil
	}

	if time.Now().After(exp) {
		return "expired", &exp, nil
	}

	// Tokens expiring within 5 minutes need a refresh soon.
	if time.Until(exp) < 5*time.Minute && td.RefreshToken != "" {
		return "refresh_needed", &exp, nil
	}
	return "valid", &exp, nil
}

// GetValidToken returns a valid access token for the integration,
// refreshing first if the stored one is near expiry.
func (fm *FlowManager) GetValidToken(
	ctx context.Context, tenantID, integrationID string,
) (string, error) {
	integ, err := fm.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return "", fmt.Errorf("get integration: %w", err)
	}
	if len(integ.TokenData) == 0 {
		return "", fmt.Errorf("integration %q is not connected", integrationID)
	}

	td, err := fm.decryptTokenData(integ.TokenData)
	if err != nil {
		return "", fmt.Errorf("decrypt token data: %w", err)
	}

	if td.ExpiresAt.IsZero() || time.Until(td.ExpiresAt) > 5*time.Minute {
		return td.AccessToken, nil
	}

	refreshed, err := fm.RefreshToken(ctx, tenantID, integrationID)
	if err != nil {
		return "", fmt.Errorf("auto-refresh: %w", err)
	}
	return refreshed.AccessToken, nil
}

// Disconnect clears the stored token data for an integration.
func (fm *FlowManager) Disconnect(ctx context.Context, tenantID, integrationID string) error {
	return fm.store.UpdateIntegrationTokenData(ctx, tenantID, integrationID, "pending", nil)
}

func (fm *FlowManager) postToken(
	ctx context.Context, tokenURL string, form url.Values,
) (*store.TokenData, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	td := &store.TokenData{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		td.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if tr.Scope != "" {
		td.Scopes = strings.Fields(tr.Scope)
	}
	return td, nil
}
