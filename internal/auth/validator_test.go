package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSessions struct {
	mu      sync.Mutex
	revoked map[string]bool
	calls   int
	err     error
}

func (f *fakeSessions) IsSessionRevoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[id], nil
}

func (f *fakeSessions) revoke(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[id] = true
}

func newTestValidator(t *testing.T, sessions *fakeSessions) (*Validator, *Issuer) {
	t.Helper()
	iss, err := NewIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return NewValidator(iss, sessions, 100, time.Minute), iss
}

func TestValidator_CachesVerification(t *testing.T) {
	sessions := &fakeSessions{}
	v, iss := newTestValidator(t, sessions)

	raw, _, err := iss.Issue("u1", "t1", RoleAdmin, "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		id, err := v.Validate(context.Background(), raw)
		if err != nil {
			t.Fatal(err)
		}
		if id.UserID != "u1" || id.TenantID != "t1" {
			t.Fatalf("identity mismatch: %+v", id)
		}
	}

	s := v.CacheStats()
	if s.Misses != 1 {
		t.Fatalf("Misses = %d; want 1 (verification should be cached)", s.Misses)
	}
	if s.Hits != 2 {
		t.Fatalf("Hits = %d; want 2", s.Hits)
	}
}

func TestValidator_RevocationBeatsCache(t *testing.T) {
	sessions := &fakeSessions{}
	v, iss := newTestValidator(t, sessions)

	raw, _, err := iss.Issue("u1", "t1", RoleViewer, "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Validate(context.Background(), raw); err != nil {
		t.Fatal(err)
	}

	// Revoke after the token is cached; the next call must still fail.
	sessions.revoke("sess-1")
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("got %v, want ErrSessionRevoked", err)
	}
}

func TestValidator_ChecksSessionEveryCall(t *testing.T) {
	sessions := &fakeSessions{}
	v, iss := newTestValidator(t, sessions)

	raw, _, err := iss.Issue("u1", "t1", RoleViewer, "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	for range 5 {
		if _, err := v.Validate(context.Background(), raw); err != nil {
			t.Fatal(err)
		}
	}
	if sessions.calls != 5 {
		t.Fatalf("revocation checks = %d; want 5 (one per call)", sessions.calls)
	}
}

func TestValidator_InvalidToken(t *testing.T) {
	v, _ := newTestValidator(t, &fakeSessions{})
	if _, err := v.Validate(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestValidator_StoreErrorPropagates(t *testing.T) {
	errDB := errors.New("db down")
	sessions := &fakeSessions{err: errDB}
	v, iss := newTestValidator(t, sessions)

	raw, _, err := iss.Issue("u1", "t1", RoleViewer, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, errDB) {
		t.Fatalf("got %v, want wrapped %v", err, errDB)
	}
}
