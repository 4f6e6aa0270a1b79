package realtime

import "slices"

// Filter describes which events a connection wants. Each field is a set of
// accepted values; an empty field is a wildcard. A filter with all fields
// empty matches every event for the connection's tenant.
type Filter struct {
	EventTypes   []string `json:"event_types,omitempty"`
	ShardTypeIDs []string `json:"shard_type_ids,omitempty"`
	ShardIDs     []string `json:"shard_ids,omitempty"`
}

// Matches reports whether the event passes the filter. It is a pure
// predicate; tenant scoping is the registry's job, not the filter's.
func (f Filter) Matches(e Event) bool {
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.Type) {
		return false
	}
	if len(f.ShardTypeIDs) > 0 && !slices.Contains(f.ShardTypeIDs, e.ShardTypeID) {
		return false
	}
	if len(f.ShardIDs) > 0 && !slices.Contains(f.ShardIDs, e.ShardID) {
		return false
	}
	return true
}

// FilterPatch is a partial filter update. A nil field leaves the current
// value untouched; a present field replaces it wholesale (an explicit
// empty list clears the field back to wildcard).
type FilterPatch struct {
	EventTypes   *[]string `json:"event_types,omitempty"`
	ShardTypeIDs *[]string `json:"shard_type_ids,omitempty"`
	ShardIDs     *[]string `json:"shard_ids,omitempty"`
}

// Apply returns the filter with the patch applied.
func (f Filter) Apply(p FilterPatch) Filter {
	if p.EventTypes != nil {
		f.EventTypes = slices.Clone(*p.EventTypes)
	}
	if p.ShardTypeIDs != nil {
		f.ShardTypeIDs = slices.Clone(*p.ShardTypeIDs)
	}
	if p.ShardIDs != nil {
		f.ShardIDs = slices.Clone(*p.ShardIDs)
	}
	return f
}
