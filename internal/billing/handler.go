package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/auth"
	inats "github.com/replypilot/replypilot/internal/nats"
	"github.com/replypilot/replypilot/internal/plans"
)

const maxWebhookBody = 65536

// CustomerStore persists the billing customer created at first checkout.
type CustomerStore interface {
	SetBillingCustomer(ctx context.Context, id uuid.UUID, customerRef string) error
}

type Handler struct {
	sync         *Sync
	gateway      Gateway
	plans        *plans.Registry
	customers    CustomerStore
	activity     ActivityRecorder
	dashboardURL string
	validate     *validator.Validate
}

// NewHandler wires the billing routes. A nil gateway makes checkout and
// portal answer 503 while webhooks and the plan list keep working.
func NewHandler(sync *Sync, gateway Gateway, registry *plans.Registry, customers CustomerStore, activity ActivityRecorder, dashboardURL string) *Handler {
	return &Handler{
		sync:         sync,
		gateway:      gateway,
		plans:        registry,
		customers:    customers,
		activity:     activity,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		validate:     validator.New(),
	}
}

type CheckoutSessionRequest struct {
	PlanID string `json:"planId" validate:"required,max=32"`
}

type CheckoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PlanView is the public shape of a plan.
type PlanView struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DailyLimit      int      `json:"dailyLimit"`
	PriceMonthly    float64  `json:"priceMonthly"`
	Currency        string   `json:"currency"`
	Features        []string `json:"features"`
	HasBillingPrice bool     `json:"hasBillingPrice"`
}

func NewPlanView(p plans.Plan) PlanView {
	return PlanView{
		ID:              p.ID,
		Name:            p.Name,
		DailyLimit:      p.DailyLimit,
		PriceMonthly:    p.PriceMonthly,
		Currency:        p.Currency,
		Features:        p.Features,
		HasBillingPrice: p.HasBillingPrice(),
	}
}

func (h *Handler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	if h.gateway == nil {
		api.HandleError(w, api.ErrBillingDisabled)
		return
	}

	var req CheckoutSessionRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError("Invalid plan selected"))
		return
	}

	plan, ok := h.plans.Lookup(req.PlanID)
	if !ok || !plan.HasBillingPrice() {
		api.HandleError(w, api.NewBadRequestError("Invalid plan selected"))
		return
	}

	customerRef := ""
	if user.BillingCustomerRef != nil {
		customerRef = *user.BillingCustomerRef
	}
	if customerRef == "" {
		name := ""
		if user.Name != nil {
			name = *user.Name
		}
		ref, err := h.gateway.CreateCustomer(r.Context(), user.Email, name, user.ID)
		if err != nil {
			slog.Error("creating billing customer", "user_id", user.ID, "error", err)
			api.JSONErrorMessage(w, http.StatusInternalServerError, "Failed to create checkout session")
			return
		}
		if err := h.customers.SetBillingCustomer(r.Context(), user.ID, ref); err != nil {
			slog.Error("saving billing customer", "user_id", user.ID, "error", err)
			api.JSONErrorMessage(w, http.StatusInternalServerError, "Failed to create checkout session")
			return
		}
		customerRef = ref
	}

	sess, err := h.gateway.CreateCheckoutSession(r.Context(), CheckoutRequest{
		CustomerRef: customerRef,
		PriceRef:    plan.BillingPriceRef,
		UserID:      user.ID,
		PlanID:      plan.ID,
		SuccessURL:  h.dashboardURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   h.dashboardURL + "/cancel",
	})
	if err != nil {
		slog.Error("creating checkout session", "user_id", user.ID, "plan", plan.ID, "error", err)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	if h.activity != nil {
		h.activity.Record(r.Context(), inats.AuditEvent{
			OwnerUserID:  user.ID,
			EventType:    inats.EventCheckoutStarted,
			Severity:     inats.SeverityInfo,
			ResourceType: "checkout_session",
			ResourceID:   sess.ID,
			Details:      map[string]string{"plan": plan.ID},
		})
	}

	api.JSON(w, http.StatusOK, CheckoutSessionResponse{SessionID: sess.ID, URL: sess.URL})
}

func (h *Handler) PortalSession(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	if h.gateway == nil {
		api.HandleError(w, api.ErrBillingDisabled)
		return
	}
	if user.BillingCustomerRef == nil || *user.BillingCustomerRef == "" {
		api.HandleError(w, api.NewBadRequestError("No active subscription found"))
		return
	}

	url, err := h.gateway.CreatePortalSession(r.Context(), *user.BillingCustomerRef, h.dashboardURL)
	if err != nil {
		slog.Error("creating portal session", "user_id", user.ID, "error", err)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	api.JSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook must receive the body untouched; the signature covers the raw bytes.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.JSONErrorMessage(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		api.HandleError(w, api.NewBadRequestError("invalid payload"))
		return
	}

	outcome, err := h.sync.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			slog.Warn("webhook signature verification failed", "error", err)
			api.HandleError(w, api.ErrSignatureInvalid)
			return
		}
		slog.Error("webhook processing failed", "error", err)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	slog.Debug("webhook processed", "outcome", outcome)
	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	all := h.plans.All()
	views := make([]PlanView, 0, len(all))
	for _, p := range all {
		views = append(views, NewPlanView(p))
	}
	api.JSON(w, http.StatusOK, map[string]any{"plans": views})
}
