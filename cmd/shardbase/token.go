package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

// cmdToken mints a token for an existing user, for API clients and
// local development. It opens a real session so the token can be
// revoked like any other.
func cmdToken(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.TokenSecret == "" {
		return errors.New("SHARDBASE_TOKEN_SECRET must be set to mint tokens")
	}

	var slug, email string
	ttl := tokenTTL
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--tenant="); ok {
			slug = v
		}
		if v, ok := strings.CutPrefix(arg, "--user="); ok {
			email = v
		}
		if v, ok := strings.CutPrefix(arg, "--ttl="); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid --ttl: %w", err)
			}
			ttl = d
		}
	}
	if slug == "" || email == "" {
		return errors.New("usage: shardbase token --tenant=<slug> --user=<email> [--ttl=1h]")
	}

	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tenant, err := db.GetTenantBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("tenant %q: %w", slug, err)
	}
	user, err := db.GetUserByEmail(ctx, tenant.ID, email)
	if err != nil {
		return fmt.Errorf("user %q: %w", email, err)
	}

	session := &store.Session{
		TenantID:  tenant.ID,
		UserID:    user.ID,
		UserAgent: "shardbase-cli",
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := db.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	issuer, err := auth.NewIssuer([]byte(cfg.TokenSecret), ttl)
	if err != nil {
		return err
	}
	token, exp, err := issuer.Issue(user.ID, tenant.ID, auth.Role(user.Role), session.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", token)
	fmt.Printf("expires: %s\n", exp.Format(time.RFC3339))
	return nil
}
