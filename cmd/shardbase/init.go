package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shardlabs/shardbase/internal/config"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

// cmdInit bootstraps the data directory: database, age key, a starter
// config file, and optionally a first tenant with an admin user.
func cmdInit(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	defer func() { _ = db.Close() }()
	fmt.Printf("Database created: %s\n", cfg.DBPath)

	if _, err := secrets.NewFromKeyFile(cfg.AgeKeyPath); err != nil {
		return fmt.Errorf("create age key: %w", err)
	}
	fmt.Printf("Age key: %s\n", cfg.AgeKeyPath)

	if err := config.SeedModelCatalog(ctx, db); err != nil {
		return fmt.Errorf("seed model catalog: %w", err)
	}

	if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
		defaultCfg := `# Shardbase configuration
# Tenants listed here are created (or renamed) on every startup.
# System shard types are seeded for each tenant automatically.

tenants: []
`
		if err := os.WriteFile(cfg.ConfigFile, []byte(defaultCfg), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Config file created: %s\n", cfg.ConfigFile)
	} else {
		fmt.Printf("Config file already exists: %s\n", cfg.ConfigFile)
	}

	slug, email := parseInitFlags(args)
	if slug == "" {
		return nil
	}

	tenant, err := db.GetTenantBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		tenant = &store.Tenant{Slug: slug, Name: slug}
		if err := db.CreateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		if err := config.SeedShardTypes(ctx, db, tenant.ID); err != nil {
			return fmt.Errorf("seed shard types: %w", err)
		}
		fmt.Printf("Tenant created: %s (%s)\n", tenant.Slug, tenant.ID)
	} else if err != nil {
		return err
	} else {
		fmt.Printf("Tenant already exists: %s (%s)\n", tenant.Slug, tenant.ID)
	}

	if email == "" {
		return nil
	}
	u, err := db.GetUserByEmail(ctx, tenant.ID, email)
	if errors.Is(err, store.ErrNotFound) {
		u = &store.User{
			TenantID:    tenant.ID,
			Email:       email,
			DisplayName: email,
			Role:        "admin",
		}
		if err := db.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		fmt.Printf("Admin user created: %s (%s)\n", u.Email, u.ID)
	} else if err != nil {
		return err
	} else {
		fmt.Printf("User already exists: %s (%s)\n", u.Email, u.ID)
	}
	return nil
}

func parseInitFlags(args []string) (slug, email string) {
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--tenant="); ok {
			slug = v
		}
		if v, ok := strings.CutPrefix(arg, "--admin="); ok {
			email = v
		}
	}
	return slug, email
}
