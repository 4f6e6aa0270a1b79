package sso

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/crewjam/saml"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

func assertionWith(attrs map[string]string) *saml.Assertion {
	stmt := saml.AttributeStatement{}
	for name, value := range attrs {
		stmt.Attributes = append(stmt.Attributes, saml.Attribute{
			Name:   name,
			Values: []saml.AttributeValue{{Value: value}},
		})
	}
	return &saml.Assertion{AttributeStatements: []saml.AttributeStatement{stmt}}
}

func newTestService(t *testing.T) (*Service, store.Store, string) {
	t.Helper()
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	tenant := &store.Tenant{Name: "Acme", Slug: "acme"}
	if err := db.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}

	iss, err := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	svc := &Service{
		store:  db,
		issuer: iss,
		logger: slog.Default(),
		cfg: Config{
			TenantSlug:  "acme",
			SessionTTL:  time.Hour,
			DefaultRole: auth.RoleViewer,
		},
	}
	return svc, db, tenant.ID
}

func TestProvisionUser_CreatesOnFirstLogin(t *testing.T) {
	svc, db, tenantID := newTestService(t)

	assertion := assertionWith(map[string]string{
		"email":       "jo@acme.test",
		"displayName": "Jo Doe",
	})
	user, err := svc.provisionUser(context.Background(), tenantID, "jo@acme.test", assertion)
	if err != nil {
		t.Fatal(err)
	}
	if user.Email != "jo@acme.test" || user.DisplayName != "Jo Doe" {
		t.Fatalf("user mismatch: %+v", user)
	}
	if user.Role != string(auth.RoleViewer) {
		t.Fatalf("role = %s; want viewer default", user.Role)
	}

	// Second login finds the same user instead of creating another.
	again, err := svc.provisionUser(context.Background(), tenantID, "jo@acme.test", assertion)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != user.ID {
		t.Fatalf("second login created a new user: %s vs %s", again.ID, user.ID)
	}
	users, err := db.ListUsers(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %d; want 1", len(users))
	}
}

func TestProvisionUser_RoleAttribute(t *testing.T) {
	svc, _, tenantID := newTestService(t)

	assertion := assertionWith(map[string]string{
		"email": "admin@acme.test",
		"role":  "admin",
	})
	user, err := svc.provisionUser(context.Background(), tenantID, "admin@acme.test", assertion)
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != "admin" {
		t.Fatalf("role = %s; want admin from assertion", user.Role)
	}
}

func TestProvisionUser_BogusRoleFallsBack(t *testing.T) {
	svc, _, tenantID := newTestService(t)

	assertion := assertionWith(map[string]string{
		"email": "x@acme.test",
		"role":  "superuser",
	})
	user, err := svc.provisionUser(context.Background(), tenantID, "x@acme.test", assertion)
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != string(auth.RoleViewer) {
		t.Fatalf("role = %s; want viewer fallback for unknown role", user.Role)
	}
}

func TestAttributeValue(t *testing.T) {
	assertion := assertionWith(map[string]string{
		"mail": "a@b.test",
		"cn":   "A B",
	})
	if got := attributeValue(assertion, "email", "mail"); got != "a@b.test" {
		t.Fatalf("got %q", got)
	}
	if got := attributeValue(assertion, "displayName", "name", "cn"); got != "A B" {
		t.Fatalf("got %q", got)
	}
	if got := attributeValue(assertion, "missing"); got != "" {
		t.Fatalf("got %q; want empty", got)
	}
	if got := attributeValue(nil, "email"); got != "" {
		t.Fatalf("nil assertion: got %q", got)
	}
}
