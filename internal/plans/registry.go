// Package plans holds the immutable subscription plan table.
package plans

import "github.com/replypilot/replypilot/internal/config"

// Plan identifiers.
const (
	Free       = "free"
	Basic      = "basic"
	Premium    = "premium"
	Enterprise = "enterprise"
)

// Plan is a read-only plan record. PriceMonthly is in Currency units.
type Plan struct {
	ID              string
	Name            string
	DailyLimit      int
	PriceMonthly    float64
	Currency        string
	BillingPriceRef string
	Features        []string
}

// HasBillingPrice reports whether the plan can be bought through checkout.
func (p Plan) HasBillingPrice() bool {
	return p.BillingPriceRef != ""
}

// Registry resolves plans by id or billing price reference. It is built once
// at startup and never mutated, so concurrent reads need no locking.
type Registry struct {
	ordered []Plan
	byID    map[string]int
	byPrice map[string]int
}

// NewRegistry builds a registry from an ordered plan list. The first plan is
// the fallback for every unresolved lookup.
func NewRegistry(list []Plan) *Registry {
	if len(list) == 0 {
		panic("plans: registry needs at least one plan")
	}

	r := &Registry{
		ordered: make([]Plan, len(list)),
		byID:    make(map[string]int, len(list)),
		byPrice: make(map[string]int, len(list)),
	}
	for i, p := range list {
		p.Features = append([]string(nil), p.Features...)
		r.ordered[i] = p
		r.byID[p.ID] = i
		if p.BillingPriceRef != "" {
			r.byPrice[p.BillingPriceRef] = i
		}
	}
	return r
}

// Default returns the canonical four-tier USD table with price references
// taken from billing configuration.
func Default(cfg config.StripeConfig) *Registry {
	return NewRegistry([]Plan{
		{
			ID:         Free,
			Name:       "Free",
			DailyLimit: 5,
			Currency:   "USD",
			Features:   []string{"5 responses per day", "All languages supported", "Basic tones"},
		},
		{
			ID:              Basic,
			Name:            "Basic",
			DailyLimit:      25,
			PriceMonthly:    4.99,
			Currency:        "USD",
			BillingPriceRef: cfg.BasicPriceID,
			Features:        []string{"25 responses per day", "All languages supported", "All tones available", "Email support"},
		},
		{
			ID:              Premium,
			Name:            "Premium",
			DailyLimit:      100,
			PriceMonthly:    14.99,
			Currency:        "USD",
			BillingPriceRef: cfg.PremiumPriceID,
			Features: []string{
				"100 responses per day",
				"All languages supported",
				"All tones available",
				"Priority support",
				"Advanced analytics",
			},
		},
		{
			ID:              Enterprise,
			Name:            "Enterprise",
			DailyLimit:      500,
			PriceMonthly:    49.99,
			Currency:        "USD",
			BillingPriceRef: cfg.EnterprisePriceID,
			Features: []string{
				"500 responses per day",
				"All languages supported",
				"All tones available",
				"24/7 priority support",
				"Custom integrations",
				"Dedicated account manager",
			},
		},
	})
}

// Resolve never fails: unknown ids fall back to the free plan.
func (r *Registry) Resolve(id string) Plan {
	if i, ok := r.byID[id]; ok {
		return r.copyOf(i)
	}
	return r.copyOf(0)
}

// ResolveByBillingPriceRef maps a billing price to its plan, falling back to
// the free plan for empty or unknown references.
func (r *Registry) ResolveByBillingPriceRef(ref string) Plan {
	if i, ok := r.byPrice[ref]; ok && ref != "" {
		return r.copyOf(i)
	}
	return r.copyOf(0)
}

// Lookup is Resolve without the fallback.
func (r *Registry) Lookup(id string) (Plan, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Plan{}, false
	}
	return r.copyOf(i), true
}

// All returns every plan in display order.
func (r *Registry) All() []Plan {
	out := make([]Plan, len(r.ordered))
	for i := range r.ordered {
		out[i] = r.copyOf(i)
	}
	return out
}

// FallbackID is the id of the plan used for unresolved lookups.
func (r *Registry) FallbackID() string {
	return r.ordered[0].ID
}

func (r *Registry) copyOf(i int) Plan {
	p := r.ordered[i]
	p.Features = append([]string(nil), p.Features...)
	return p
}
