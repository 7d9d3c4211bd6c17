package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "REPLYPILOT_EVENTS"
)

// Subject constants.
const (
	SubjectEventsWildcard = "replypilot.events.>"
	SubjectAuditEvent     = "replypilot.events.audit"
	SubjectBillingNotice  = "replypilot.events.billing"
)

// Audit event types.
const (
	EventUserRegistered      = "user_registered"
	EventUserLogin           = "user_login"
	EventUserLogout          = "user_logout"
	EventCheckoutStarted     = "checkout_started"
	EventSubscriptionChanged = "subscription_changed"
	EventSubscriptionEnded   = "subscription_canceled"
	EventPaymentFailed       = "payment_failed"
)

// Audit severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// AuditEvent is published for account activity and persisted by the audit consumer.
type AuditEvent struct {
	OwnerUserID  uuid.UUID         `json:"owner_user_id"`
	EventType    string            `json:"event_type"`
	Severity     string            `json:"severity"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Details      map[string]string `json:"details,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// BillingNotice is published when a billing event needs out-of-band follow-up,
// such as a failed payment.
type BillingNotice struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	CustomerRef string    `json:"customer_ref"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
