package connect

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// StateEntry holds the CSRF state for an in-flight connect authorization.
type StateEntry struct {
	TenantID      string
	IntegrationID string
	CodeVerifier  string // PKCE verifier (empty if not using PKCE)
	CreatedAt     time.Time
}

// StateStore is an in-memory CSRF state store with automatic TTL cleanup.
type StateStore struct {
	mu      sync.Mutex
	entries map[string]StateEntry
	ttl     time.Duration
}

// NewStateStore creates a StateStore with a 10-minute TTL.
func NewStateStore() *StateStore {
	return &StateStore{
		entries: make(map[string]StateEntry),
		ttl:     10 * time.Minute,
	}
}

// Create generates a new state token bound to the tenant and integration
// starting the flow, plus an optional PKCE code verifier.
func (s *StateStore) Create(tenantID, integrationID, codeVerifier string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup()

	token, err := generateStateToken()
	if err != nil {
		return "", err
	}
	s.entries[token] = StateEntry{
		TenantID:      tenantID,
		IntegrationID: integrationID,
		CodeVerifier:  codeVerifier,
		CreatedAt:     time.Now(),
	}
	return token, nil
}

// Validate checks a state token and returns the associated entry.
// The token is consumed on successful validation.
func (s *StateStore) Validate(state string) (*StateEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, false
	}
	delete(s.entries, state)

	if time.Since(entry.CreatedAt) > s.ttl {
		return nil, false
	}
	return &entry, true
}

// cleanup removes expired entries. Must be called with mu held.
func (s *StateStore) cleanup() {
	now := time.Now()
	for k, v := range s.entries {
		if now.Sub(v.CreatedAt) > s.ttl {
			delete(s.entries, k)
		}
	}
}

func generateStateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}
