package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/replypilot/replypilot/internal/metrics"
	inats "github.com/replypilot/replypilot/internal/nats"
	"github.com/replypilot/replypilot/internal/plans"
	"github.com/replypilot/replypilot/internal/users"
)

// ErrSignatureInvalid is returned for any payload whose signature does not
// verify against the webhook secret.
var ErrSignatureInvalid = errors.New("billing: invalid webhook signature")

const processedTTL = 72 * time.Hour

// UserStore is the user state the sync reads and writes.
type UserStore interface {
	GetByBillingCustomer(ctx context.Context, customerRef string) (*users.User, error)
	ApplySubscription(ctx context.Context, customerRef string, sub users.Subscription) (uuid.UUID, error)
}

// Notifier receives follow-up notices such as failed payments.
type Notifier interface {
	PublishBillingNotice(ctx context.Context, notice inats.BillingNotice) error
}

// ActivityRecorder receives per-user activity for the audit trail.
type ActivityRecorder interface {
	Record(ctx context.Context, event inats.AuditEvent)
}

// Outcome says what Apply did with an event.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeInformational   Outcome = "informational"
	OutcomeUnknownCustomer Outcome = "unknown_customer"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeDuplicate       Outcome = "duplicate"
)

// Sync is a one-way reducer from verified provider events onto user plan
// state. It never touches usage.
type Sync struct {
	webhookSecret string
	plans         *plans.Registry
	users         UserStore
	notifier      Notifier
	activity      ActivityRecorder
	redis         redis.Cmdable
}

type SyncOption func(*Sync)

func WithNotifier(n Notifier) SyncOption {
	return func(s *Sync) { s.notifier = n }
}

func WithActivity(a ActivityRecorder) SyncOption {
	return func(s *Sync) { s.activity = a }
}

// WithReplayGuard skips event ids already processed in the last 72 hours.
// Redis failures let the event through.
func WithReplayGuard(client redis.Cmdable) SyncOption {
	return func(s *Sync) { s.redis = client }
}

func NewSync(webhookSecret string, registry *plans.Registry, store UserStore, opts ...SyncOption) *Sync {
	s := &Sync{
		webhookSecret: webhookSecret,
		plans:         registry,
		users:         store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks the signature header against the raw body and decodes the
// event. Nothing in the payload is looked at before the signature passes.
func (s *Sync) Verify(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, fmt.Errorf("%w: webhook secret not configured", ErrSignatureInvalid)
	}
	se, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return decodeEvent(se)
}

// HandleWebhook verifies then applies one delivery.
func (s *Sync) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := s.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			metrics.BillingEventsTotal.WithLabelValues("unverified", "rejected").Inc()
		}
		return "", err
	}
	return s.Apply(ctx, ev)
}

// Apply reduces one verified event. Unknown customers and unknown kinds are
// logged and reported as outcomes, not errors.
func (s *Sync) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if s.alreadyProcessed(ctx, ev.ID) {
		slog.Info("billing event already processed", "event_id", ev.ID, "type", ev.Type)
		metrics.BillingEventsTotal.WithLabelValues(ev.Kind.String(), string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	var (
		outcome Outcome
		err     error
	)
	switch ev.Kind {
	case KindCheckoutCompleted:
		outcome, err = s.onCheckoutCompleted(ctx, ev)
	case KindSubscriptionCreated, KindSubscriptionUpdated:
		outcome, err = s.onSubscriptionChanged(ctx, ev)
	case KindSubscriptionDeleted:
		outcome, err = s.onSubscriptionDeleted(ctx, ev)
	case KindPaymentFailed:
		outcome, err = s.onPaymentFailed(ctx, ev)
	default:
		slog.Info("unhandled billing event type", "event_id", ev.ID, "type", ev.Type)
		outcome = OutcomeIgnored
	}

	if err != nil {
		metrics.BillingEventsTotal.WithLabelValues(ev.Kind.String(), "error").Inc()
		return "", err
	}
	metrics.BillingEventsTotal.WithLabelValues(ev.Kind.String(), string(outcome)).Inc()
	s.markProcessed(ctx, ev.ID)
	return outcome, nil
}

func (s *Sync) onCheckoutCompleted(ctx context.Context, ev Event) (Outcome, error) {
	user, err := s.users.GetByBillingCustomer(ctx, ev.CustomerRef)
	if err != nil {
		return "", fmt.Errorf("looking up customer %s: %w", ev.CustomerRef, err)
	}
	if user == nil {
		s.warnUnknownCustomer(ev)
		return OutcomeUnknownCustomer, nil
	}
	slog.Info("checkout completed", "event_id", ev.ID, "user_id", user.ID, "session", ev.SessionRef)
	return OutcomeInformational, nil
}

func (s *Sync) onSubscriptionChanged(ctx context.Context, ev Event) (Outcome, error) {
	state := ev.Subscription
	if state == nil {
		state = &SubscriptionState{}
	}
	plan := s.plans.ResolveByBillingPriceRef(state.PriceRef)

	var subRef *string
	if state.Ref != "" {
		ref := state.Ref
		subRef = &ref
	}
	sub := users.Subscription{
		Plan:            plan.ID,
		SubscriptionRef: subRef,
		Status:          MapStatus(state.Status),
		PeriodEnd:       state.PeriodEnd,
	}

	userID, err := s.users.ApplySubscription(ctx, ev.CustomerRef, sub)
	if errors.Is(err, users.ErrNotFound) {
		s.warnUnknownCustomer(ev)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return "", fmt.Errorf("applying subscription for %s: %w", ev.CustomerRef, err)
	}

	slog.Info("subscription updated",
		"event_id", ev.ID,
		"user_id", userID,
		"plan", plan.ID,
		"status", sub.Status,
		"provider_status", state.Status,
	)
	s.record(ctx, userID, inats.EventSubscriptionChanged, inats.SeverityInfo, state.Ref, map[string]string{
		"plan":   plan.ID,
		"status": string(sub.Status),
	})
	return OutcomeApplied, nil
}

func (s *Sync) onSubscriptionDeleted(ctx context.Context, ev Event) (Outcome, error) {
	sub := users.Subscription{
		Plan:   s.plans.FallbackID(),
		Status: users.StatusCanceled,
	}

	userID, err := s.users.ApplySubscription(ctx, ev.CustomerRef, sub)
	if errors.Is(err, users.ErrNotFound) {
		s.warnUnknownCustomer(ev)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return "", fmt.Errorf("canceling subscription for %s: %w", ev.CustomerRef, err)
	}

	slog.Info("subscription canceled, reverted to free plan", "event_id", ev.ID, "user_id", userID)
	var ref string
	if ev.Subscription != nil {
		ref = ev.Subscription.Ref
	}
	s.record(ctx, userID, inats.EventSubscriptionEnded, inats.SeverityInfo, ref, nil)
	return OutcomeApplied, nil
}

// onPaymentFailed changes no state; it only notifies.
func (s *Sync) onPaymentFailed(ctx context.Context, ev Event) (Outcome, error) {
	user, err := s.users.GetByBillingCustomer(ctx, ev.CustomerRef)
	if err != nil {
		return "", fmt.Errorf("looking up customer %s: %w", ev.CustomerRef, err)
	}
	if user == nil {
		s.warnUnknownCustomer(ev)
		return OutcomeUnknownCustomer, nil
	}

	slog.Warn("payment failed", "event_id", ev.ID, "user_id", user.ID)
	s.record(ctx, user.ID, inats.EventPaymentFailed, inats.SeverityWarn, "", nil)

	if s.notifier != nil {
		notice := inats.BillingNotice{
			EventID:     ev.ID,
			Kind:        ev.Kind.String(),
			CustomerRef: ev.CustomerRef,
			UserID:      user.ID,
			Timestamp:   time.Now().UTC(),
		}
		if err := s.notifier.PublishBillingNotice(ctx, notice); err != nil {
			slog.Warn("publishing payment failure notice", "event_id", ev.ID, "error", err)
		}
	}
	return OutcomeInformational, nil
}

func (s *Sync) warnUnknownCustomer(ev Event) {
	slog.Warn("billing event for unknown customer dropped",
		"event_id", ev.ID,
		"type", ev.Type,
		"customer", ev.CustomerRef,
	)
}

func (s *Sync) record(ctx context.Context, userID uuid.UUID, eventType, severity, resourceID string, details map[string]string) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, inats.AuditEvent{
		OwnerUserID:  userID,
		EventType:    eventType,
		Severity:     severity,
		ResourceType: "subscription",
		ResourceID:   resourceID,
		Details:      details,
	})
}

func processedKey(eventID string) string {
	return "billing:event:" + eventID
}

func (s *Sync) alreadyProcessed(ctx context.Context, eventID string) bool {
	if s.redis == nil || eventID == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, processedKey(eventID)).Result()
	if err != nil {
		slog.Warn("billing replay check failed, processing event", "event_id", eventID, "error", err)
		return false
	}
	return n > 0
}

func (s *Sync) markProcessed(ctx context.Context, eventID string) {
	if s.redis == nil || eventID == "" {
		return
	}
	if err := s.redis.Set(ctx, processedKey(eventID), "1", processedTTL).Err(); err != nil {
		slog.Warn("marking billing event processed", "event_id", eventID, "error", err)
	}
}
