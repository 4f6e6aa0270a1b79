package audit

import (
	"context"
	"fmt"

	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/store"
)

// EventRecorded is the live-stream event type emitted for every audit
// record, so dashboards can tail the audit log in real time.
const EventRecorded = "audit.recorded"

// Recorder writes audit records with detail redaction and mirrors them
// onto the live event stream.
type Recorder struct {
	store     store.AuditStore
	publisher realtime.Publisher
}

// NewRecorder creates a Recorder. publisher may be nil to skip live
// mirroring.
func NewRecorder(auditStore store.AuditStore, publisher realtime.Publisher) *Recorder {
	return &Recorder{store: auditStore, publisher: publisher}
}

// Record redacts sensitive detail keys and inserts the audit record.
func (r *Recorder) Record(ctx context.Context, rec *store.AuditRecord) error {
	if len(rec.Detail) > 0 {
		rec.Detail = Redact(rec.Detail)
	}

	if err := r.store.InsertAuditRecord(ctx, rec); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	if r.publisher != nil {
		evt, err := realtime.NewEvent(EventRecorded, rec.TenantID, "", rec.EntityID, rec)
		if err != nil {
			return fmt.Errorf("encode audit event: %w", err)
		}
		r.publisher.Publish(ctx, evt)
	}
	return nil
}
