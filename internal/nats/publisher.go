package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishAuditEvent publishes an audit event.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectAuditEvent, event)
}

// PublishBillingNotice publishes a billing follow-up notice. The provider
// event id doubles as the message id so a redelivered webhook does not
// produce a second notice.
func (p *Publisher) PublishBillingNotice(ctx context.Context, notice BillingNotice) error {
	var opts []jetstream.PublishOpt
	if notice.EventID != "" {
		opts = append(opts, jetstream.WithMsgID("billing:"+notice.EventID))
	}
	return p.publish(ctx, SubjectBillingNotice, notice, opts...)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	ack, err := p.js.Publish(ctx, subject, payload, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	if ack.Duplicate {
		slog.Debug("duplicate publish dropped by stream", "subject", subject, "seq", ack.Sequence)
	}
	return nil
}
