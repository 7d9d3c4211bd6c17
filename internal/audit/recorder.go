package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	inats "github.com/replypilot/replypilot/internal/nats"
)

// Publisher is the NATS side of the recorder.
type Publisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Recorder emits audit events. With a publisher, events go through JetStream
// and the Consumer persists them; without one they are written to the store
// directly. Failures are logged and never returned.
type Recorder struct {
	publisher Publisher
	store     Store
}

func NewRecorder(publisher Publisher, store Store) *Recorder {
	return &Recorder{publisher: publisher, store: store}
}

func (r *Recorder) Record(ctx context.Context, event inats.AuditEvent) {
	if r == nil || event.OwnerUserID == uuid.Nil {
		return
	}
	if event.Severity == "" {
		event.Severity = inats.SeverityInfo
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)

	if r.publisher != nil {
		err := r.publisher.PublishAuditEvent(ctx, event)
		if err == nil {
			return
		}
		slog.Warn("publishing audit event, writing directly", "event_type", event.EventType, "error", err)
	}
	if r.store == nil {
		return
	}
	if err := r.store.Insert(ctx, entryFromEvent(event)); err != nil {
		slog.Error("writing audit entry", "event_type", event.EventType, "error", err)
	}
}

func entryFromEvent(event inats.AuditEvent) *Entry {
	entry := &Entry{
		ID:           uuid.New(),
		OwnerUserID:  event.OwnerUserID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		CreatedAt:    event.Timestamp,
	}
	details := event.Details
	if details == nil {
		details = map[string]string{}
	}
	if data, err := json.Marshal(details); err == nil {
		entry.Details = data
	}
	return entry
}
