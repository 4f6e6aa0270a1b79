package realtime

import "testing"

func TestFilter_Matches(t *testing.T) {
	evt := Event{
		Type:        "updated",
		TenantID:    "t1",
		ShardTypeID: "c_document",
		ShardID:     "d1",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches everything", Filter{}, true},
		{"matching event type", Filter{EventTypes: []string{"updated"}}, true},
		{"non-matching event type", Filter{EventTypes: []string{"deleted"}}, false},
		{"matching shard type", Filter{ShardTypeIDs: []string{"c_document"}}, true},
		{"non-matching shard type", Filter{ShardTypeIDs: []string{"c_task"}}, false},
		{"matching shard id", Filter{ShardIDs: []string{"d1"}}, true},
		{"non-matching shard id", Filter{ShardIDs: []string{"s2"}}, false},
		{
			"all fields must pass",
			Filter{EventTypes: []string{"updated"}, ShardTypeIDs: []string{"c_task"}},
			false,
		},
		{
			"all fields matching",
			Filter{
				EventTypes:   []string{"created", "updated"},
				ShardTypeIDs: []string{"c_document"},
				ShardIDs:     []string{"d1", "d2"},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(evt); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_MatchesEventWithoutEntityIDs(t *testing.T) {
	// An event with no shard identifiers cannot satisfy a narrowing filter.
	evt := Event{Type: "audit", TenantID: "t1"}

	if (Filter{ShardTypeIDs: []string{"c_document"}}).Matches(evt) {
		t.Fatal("filter narrowing by shard type must reject events without one")
	}
	if !(Filter{}).Matches(evt) {
		t.Fatal("empty filter must match events without entity identifiers")
	}
}

func TestFilter_Apply(t *testing.T) {
	base := Filter{
		EventTypes:   []string{"updated"},
		ShardTypeIDs: []string{"c_document"},
	}

	// Nil fields leave values untouched.
	got := base.Apply(FilterPatch{})
	if len(got.EventTypes) != 1 || got.EventTypes[0] != "updated" {
		t.Fatalf("empty patch changed EventTypes: %v", got.EventTypes)
	}
	if len(got.ShardTypeIDs) != 1 || got.ShardTypeIDs[0] != "c_document" {
		t.Fatalf("empty patch changed ShardTypeIDs: %v", got.ShardTypeIDs)
	}

	// Present fields replace wholesale.
	types := []string{"created", "deleted"}
	got = base.Apply(FilterPatch{EventTypes: &types})
	if len(got.EventTypes) != 2 {
		t.Fatalf("patch did not replace EventTypes: %v", got.EventTypes)
	}
	if len(got.ShardTypeIDs) != 1 {
		t.Fatalf("patch touched ShardTypeIDs: %v", got.ShardTypeIDs)
	}

	// An explicit empty list clears back to wildcard.
	empty := []string{}
	got = base.Apply(FilterPatch{ShardTypeIDs: &empty})
	if len(got.ShardTypeIDs) != 0 {
		t.Fatalf("empty patch list did not clear ShardTypeIDs: %v", got.ShardTypeIDs)
	}
	if !got.Matches(Event{Type: "updated", TenantID: "t1", ShardTypeID: "c_task"}) {
		t.Fatal("cleared shard type field should act as wildcard")
	}
}
