package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shardlabs/shardbase/internal/store"
)

// systemShardTypes are created for every tenant and cannot be deleted.
var systemShardTypes = []store.ShardType{
	{Key: "c_document", Name: "Document", Description: "Rich-text document", Icon: "file-text", System: true},
	{Key: "c_task", Name: "Task", Description: "Actionable work item", Icon: "check-square", System: true},
	{Key: "c_note", Name: "Note", Description: "Freeform note", Icon: "sticky-note", System: true},
}

// builtinModels is the stock AI model catalog, visible to every tenant.
var builtinModels = []store.Model{
	{
		Key: "win_probability", Name: "Win Probability", Provider: "builtin", Task: "scoring",
		Capabilities: json.RawMessage(`{"inputs":["c_task"],"outputs":["probability"]}`),
	},
	{
		Key: "risk_scoring", Name: "Risk Scoring", Provider: "builtin", Task: "scoring",
		Capabilities: json.RawMessage(`{"inputs":["c_document","c_task"],"outputs":["risk_score","risk_band"]}`),
	},
	{
		Key: "anomaly_isolation_forest", Name: "Anomaly Detection", Provider: "builtin", Task: "anomaly",
		Capabilities: json.RawMessage(`{"inputs":["activity"],"outputs":["anomaly_flag","anomaly_score"]}`),
	},
	{
		Key: "prophet_forecast", Name: "Activity Forecast", Provider: "builtin", Task: "forecast",
		Capabilities: json.RawMessage(`{"inputs":["time_series"],"outputs":["forecast","bounds"]}`),
	},
	{
		Key: "lstm_trajectory", Name: "Trajectory Prediction", Provider: "builtin", Task: "forecast",
		Capabilities: json.RawMessage(`{"inputs":["revision_history"],"outputs":["trajectory"]}`),
	},
}

// SeedShardTypes creates the system shard types for a tenant if absent.
func SeedShardTypes(ctx context.Context, s store.ShardTypeStore, tenantID string) error {
	for _, st := range systemShardTypes {
		_, err := s.GetShardTypeByKey(ctx, tenantID, st.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up shard type %s: %w", st.Key, err)
		}
		st.TenantID = tenantID
		if err := s.CreateShardType(ctx, &st); err != nil {
			return fmt.Errorf("seed shard type %s: %w", st.Key, err)
		}
	}
	return nil
}

// SeedModelCatalog inserts the built-in model catalog entries if absent.
// Built-in models have an empty tenant ID and are visible to all tenants.
func SeedModelCatalog(ctx context.Context, s store.ModelStore) error {
	for _, m := range builtinModels {
		_, err := s.GetModelByKey(ctx, "", m.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up model %s: %w", m.Key, err)
		}
		m.Enabled = true
		if err := s.CreateModel(ctx, &m); err != nil {
			return fmt.Errorf("seed model %s: %w", m.Key, err)
		}
	}
	return nil
}
