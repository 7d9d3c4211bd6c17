// Package account serves the signed-in user's profile and subscription views.
package account

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/billing"
	"github.com/replypilot/replypilot/internal/plans"
	"github.com/replypilot/replypilot/internal/usage"
	"github.com/replypilot/replypilot/internal/users"
)

// UsageReader reads today's usage without side effects.
type UsageReader interface {
	Snapshot(ctx context.Context, userID uuid.UUID, plan plans.Plan) (usage.Snapshot, error)
}

type Handler struct {
	plans *plans.Registry
	usage UsageReader
}

func NewHandler(registry *plans.Registry, usage UsageReader) *Handler {
	return &Handler{plans: registry, usage: usage}
}

type ProfileUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProfileSubscription struct {
	Plan             string                   `json:"plan"`
	PlanName         string                   `json:"planName"`
	Status           users.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time               `json:"currentPeriodEnd"`
	Features         []string                 `json:"features"`
}

type ProfileResponse struct {
	User         ProfileUser         `json:"user"`
	Subscription ProfileSubscription `json:"subscription"`
	Usage        struct {
		Today usage.Snapshot `json:"today"`
	} `json:"usage"`
}

type CurrentPlan struct {
	PlanID           string                   `json:"planId"`
	PlanName         string                   `json:"planName"`
	DailyLimit       int                      `json:"dailyLimit"`
	PriceMonthly     float64                  `json:"priceMonthly"`
	Status           users.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time               `json:"currentPeriodEnd"`
}

type AvailablePlan struct {
	billing.PlanView
	IsCurrent  bool `json:"isCurrent"`
	CanUpgrade bool `json:"canUpgrade"`
}

type SubscriptionResponse struct {
	Current        CurrentPlan     `json:"current"`
	AvailablePlans []AvailablePlan `json:"availablePlans"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	plan := h.plans.Resolve(user.Plan)
	snap, err := h.usage.Snapshot(r.Context(), user.ID, plan)
	if err != nil {
		slog.Error("loading profile usage", "user_id", user.ID, "error", err)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}

	resp := ProfileResponse{
		User: ProfileUser{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			CreatedAt: user.CreatedAt,
		},
		Subscription: ProfileSubscription{
			Plan:             plan.ID,
			PlanName:         plan.Name,
			Status:           user.SubscriptionStatus,
			CurrentPeriodEnd: user.PeriodEnd,
			Features:         plan.Features,
		},
	}
	resp.Usage.Today = snap

	api.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	current := h.plans.Resolve(user.Plan)
	all := h.plans.All()
	available := make([]AvailablePlan, 0, len(all))
	for _, p := range all {
		available = append(available, AvailablePlan{
			PlanView:   billing.NewPlanView(p),
			IsCurrent:  p.ID == current.ID,
			CanUpgrade: p.PriceMonthly > current.PriceMonthly,
		})
	}

	api.JSON(w, http.StatusOK, SubscriptionResponse{
		Current: CurrentPlan{
			PlanID:           current.ID,
			PlanName:         current.Name,
			DailyLimit:       current.DailyLimit,
			PriceMonthly:     current.PriceMonthly,
			Status:           user.SubscriptionStatus,
			CurrentPeriodEnd: user.PeriodEnd,
		},
		AvailablePlans: available,
	})
}
