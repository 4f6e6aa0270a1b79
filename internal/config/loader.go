package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shardlabs/shardbase/internal/store"
)

// FileConfig represents the top-level shardbase.yaml structure. The file
// declares tenants to bootstrap; everything else is managed via the API.
type FileConfig struct {
	Tenants []tenantConfig `yaml:"tenants"`
}

type tenantConfig struct {
	Slug       string            `yaml:"slug"`
	Name       string            `yaml:"name"`
	ShardTypes []shardTypeConfig `yaml:"shard_types,omitempty"`
}

type shardTypeConfig struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Icon        string `yaml:"icon,omitempty"`
}

// LoadFile reads, parses, and validates a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *FileConfig) error {
	seen := make(map[string]bool)
	for i, t := range cfg.Tenants {
		if t.Slug == "" {
			return fmt.Errorf("tenants[%d]: slug is required", i)
		}
		if t.Name == "" {
			return fmt.Errorf("tenant %q: name is required", t.Slug)
		}
		if seen[t.Slug] {
			return fmt.Errorf("tenant %q: duplicate slug", t.Slug)
		}
		seen[t.Slug] = true
		for j, st := range t.ShardTypes {
			if st.Key == "" || st.Name == "" {
				return fmt.Errorf("tenant %q shard_types[%d]: key and name are required", t.Slug, j)
			}
		}
	}
	return nil
}

// Apply upserts tenants from the config file into the store, then makes
// sure each has the system shard types plus any custom types the file
// declares. Tenants absent from the file are left untouched.
func Apply(ctx context.Context, s store.Store, cfg *FileConfig) error {
	return s.Tx(ctx, func(tx store.Store) error {
		for _, tc := range cfg.Tenants {
			tenant, err := ensureTenant(ctx, tx, tc)
			if err != nil {
				return err
			}
			if err := SeedShardTypes(ctx, tx, tenant.ID); err != nil {
				return err
			}
			for _, st := range tc.ShardTypes {
				if err := ensureShardType(ctx, tx, tenant.ID, store.ShardType{
					Key:         st.Key,
					Name:        st.Name,
					Description: st.Description,
					Icon:        st.Icon,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensureTenant(ctx context.Context, tx store.Store, tc tenantConfig) (*store.Tenant, error) {
	existing, err := tx.GetTenantBySlug(ctx, tc.Slug)
	if err == nil {
		if existing.Name != tc.Name {
			existing.Name = tc.Name
			if err := tx.UpdateTenant(ctx, existing); err != nil {
				return nil, fmt.Errorf("update tenant %s: %w", tc.Slug, err)
			}
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up tenant %s: %w", tc.Slug, err)
	}

	tenant := &store.Tenant{Name: tc.Name, Slug: tc.Slug}
	if err := tx.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant %s: %w", tc.Slug, err)
	}
	return tenant, nil
}

func ensureShardType(ctx context.Context, tx store.Store, tenantID string, st store.ShardType) error {
	existing, err := tx.GetShardTypeByKey(ctx, tenantID, st.Key)
	if err == nil {
		existing.Name = st.Name
		existing.Description = st.Description
		if st.Icon != "" {
			existing.Icon = st.Icon
		}
		if err := tx.UpdateShardType(ctx, existing); err != nil {
			return fmt.Errorf("update shard type %s: %w", st.Key, err)
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up shard type %s: %w", st.Key, err)
	}

	st.TenantID = tenantID
	if err := tx.CreateShardType(ctx, &st); err != nil {
		return fmt.Errorf("create shard type %s: %w", st.Key, err)
	}
	return nil
}
