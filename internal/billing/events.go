// Package billing connects plans to the subscription provider: checkout and
// portal sessions going out, signed webhook events coming in.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/replypilot/replypilot/internal/users"
)

// EventKind is the closed set of provider events the sync understands.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCheckoutCompleted
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindPaymentFailed
)

var kindNames = map[EventKind]string{
	KindUnknown:             "unknown",
	KindCheckoutCompleted:   "checkout_completed",
	KindSubscriptionCreated: "subscription_created",
	KindSubscriptionUpdated: "subscription_updated",
	KindSubscriptionDeleted: "subscription_deleted",
	KindPaymentFailed:       "payment_failed",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var kindsByType = map[stripe.EventType]EventKind{
	"checkout.session.completed":    KindCheckoutCompleted,
	"customer.subscription.created": KindSubscriptionCreated,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
	"invoice.payment_failed":        KindPaymentFailed,
}

// Event is a verified provider event reduced to what the sync acts on.
type Event struct {
	ID          string
	Type        string
	Kind        EventKind
	CustomerRef string

	// Set for subscription kinds.
	Subscription *SubscriptionState
	// Set for checkout.
	SessionRef string
}

// SubscriptionState is the subscription as the provider reported it.
type SubscriptionState struct {
	Ref       string
	PriceRef  string
	Status    stripe.SubscriptionStatus
	PeriodEnd *time.Time
}

func decodeEvent(se stripe.Event) (Event, error) {
	ev := Event{
		ID:   se.ID,
		Type: string(se.Type),
		Kind: kindsByType[se.Type],
	}
	if ev.Kind == KindUnknown {
		return ev, nil
	}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return ev, fmt.Errorf("event %s has no data object", se.ID)
	}

	switch ev.Kind {
	case KindCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(se.Data.Raw, &sess); err != nil {
			return ev, fmt.Errorf("decoding checkout session: %w", err)
		}
		ev.SessionRef = sess.ID
		if sess.Customer != nil {
			ev.CustomerRef = sess.Customer.ID
		}

	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(se.Data.Raw, &sub); err != nil {
			return ev, fmt.Errorf("decoding subscription: %w", err)
		}
		if sub.Customer != nil {
			ev.CustomerRef = sub.Customer.ID
		}
		state := &SubscriptionState{Ref: sub.ID, Status: sub.Status}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			state.PriceRef = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			state.PeriodEnd = &end
		}
		ev.Subscription = state

	case KindPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(se.Data.Raw, &inv); err != nil {
			return ev, fmt.Errorf("decoding invoice: %w", err)
		}
		if inv.Customer != nil {
			ev.CustomerRef = inv.Customer.ID
		}
	}

	return ev, nil
}

// MapStatus folds the provider's subscription statuses into the four the
// user record stores.
func MapStatus(s stripe.SubscriptionStatus) users.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return users.StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return users.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return users.StatusCanceled
	default:
		return users.StatusNone
	}
}
