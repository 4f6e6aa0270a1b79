// Package realtime tracks open event-stream connections and fans out
// entity change events to subscribers, scoped per tenant.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Event is a single change notification. TenantID bounds delivery: an
// event is never delivered across tenant boundaries regardless of filter.
type Event struct {
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id"`
	ShardTypeID string          `json:"shard_type_id,omitempty"`
	ShardID     string          `json:"shard_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event, marshalling payload to JSON. A nil payload
// produces an event with no payload field.
func NewEvent(eventType, tenantID, shardTypeID, shardID string, payload any) (Event, error) {
	e := Event{
		Type:        eventType,
		TenantID:    tenantID,
		ShardTypeID: shardTypeID,
		ShardID:     shardID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event payload: %w", err)
		}
		e.Payload = data
	}
	return e, nil
}

// Encode renders the event as a text event-stream frame:
//
//	event: <type>
//	data: <json>
//	<blank line>
//
// The data JSON always carries the type and payload fields.
func (e Event) Encode() ([]byte, error) {
	body, err := json.Marshal(struct {
		Type        string          `json:"type"`
		TenantID    string          `json:"tenant_id"`
		ShardTypeID string          `json:"shard_type_id,omitempty"`
		ShardID     string          `json:"shard_id,omitempty"`
		Payload     json.RawMessage `json:"payload"`
	}{
		Type:        e.Type,
		TenantID:    e.TenantID,
		ShardTypeID: e.ShardTypeID,
		ShardID:     e.ShardID,
		Payload:     normalizePayload(e.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event frame: %w", err)
	}

	var buf bytes.Buffer
	if e.Type != "" {
		fmt.Fprintf(&buf, "event: %s\n", e.Type)
	}
	fmt.Fprintf(&buf, "data: %s\n\n", body)
	return buf.Bytes(), nil
}

func normalizePayload(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage("null")
	}
	return p
}

// heartbeatFrame is an SSE comment line; clients ignore it, intermediaries
// see traffic and keep the connection open.
var heartbeatFrame = []byte(":\n\n")

// Publisher is the producer-side interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout broadcasts each event to every wrapped publisher.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}
