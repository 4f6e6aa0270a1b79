package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
)

const sampleYAML = `
tenants:
  - slug: acme
    name: Acme Corp
    shard_types:
      - key: c_contract
        name: Contract
        description: Legal contract
  - slug: globex
    name: Globex
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Tenants) != 2 {
		t.Fatalf("tenants = %d; want 2", len(cfg.Tenants))
	}
	if cfg.Tenants[0].Slug != "acme" || len(cfg.Tenants[0].ShardTypes) != 1 {
		t.Fatalf("unexpected first tenant: %+v", cfg.Tenants[0])
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing slug", "tenants:\n  - name: NoSlug\n"},
		{"missing name", "tenants:\n  - slug: x\n"},
		{"duplicate slug", "tenants:\n  - slug: x\n    name: A\n  - slug: x\n    name: B\n"},
		{"shard type missing key", "tenants:\n  - slug: x\n    name: A\n    shard_types:\n      - name: Y\n"},
		{"bad yaml", "tenants: ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApply_BootstrapsAndIsIdempotent(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	for range 2 { // second apply must not duplicate anything
		if err := Apply(context.Background(), db, cfg); err != nil {
			t.Fatal(err)
		}
	}

	tenants, err := db.ListTenants(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 2 {
		t.Fatalf("tenants = %d; want 2", len(tenants))
	}

	acme, err := db.GetTenantBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	types, err := db.ListShardTypes(context.Background(), acme.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Three system types plus the custom contract type.
	if len(types) != 4 {
		t.Fatalf("shard types = %d; want 4", len(types))
	}
	byKey := make(map[string]store.ShardType)
	for _, st := range types {
		byKey[st.Key] = st
	}
	if !byKey["c_document"].System {
		t.Fatal("c_document should be a system type")
	}
	if byKey["c_contract"].System {
		t.Fatal("c_contract should not be a system type")
	}
}

func TestApply_RenamesTenant(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg, _ := Parse([]byte("tenants:\n  - slug: acme\n    name: Acme\n"))
	if err := Apply(context.Background(), db, cfg); err != nil {
		t.Fatal(err)
	}

	cfg, _ = Parse([]byte("tenants:\n  - slug: acme\n    name: Acme Corp\n"))
	if err := Apply(context.Background(), db, cfg); err != nil {
		t.Fatal(err)
	}

	tenant, err := db.GetTenantBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if tenant.Name != "Acme Corp" {
		t.Fatalf("name = %s; want Acme Corp", tenant.Name)
	}
}

func TestSeedModelCatalog(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for range 2 {
		if err := SeedModelCatalog(context.Background(), db); err != nil {
			t.Fatal(err)
		}
	}

	models, err := db.ListModels(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != len(builtinModels) {
		t.Fatalf("models = %d; want %d", len(models), len(builtinModels))
	}
	for _, m := range models {
		if !m.Enabled {
			t.Fatalf("model %s should be enabled", m.Key)
		}
	}
}
