package generation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/plans"
)

type Handler struct {
	svc   *Service
	plans *plans.Registry
}

func NewHandler(svc *Service, registry *plans.Registry) *Handler {
	return &Handler{svc: svc, plans: registry}
}

func (h *Handler) GenerateResponse(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req Request
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	result, err := h.svc.Generate(r.Context(), user, req)
	if err != nil {
		api.HandleError(w, toAppError(err))
		return
	}

	api.JSON(w, http.StatusOK, result)
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snap, err := h.svc.UsageSnapshot(r.Context(), user)
	if err != nil {
		slog.Error("getting usage snapshot", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"usage": snap})
}

// Models is public. Authenticated callers also get their resolved plan.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"models":  h.svc.Models(),
		"default": h.svc.DefaultModel(),
	}
	if user := auth.CurrentUser(r.Context()); user != nil {
		body["plan"] = h.plans.Resolve(user.Plan).ID
	}
	api.JSON(w, http.StatusOK, body)
}

func toAppError(err error) error {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return api.NewValidationError(inputErr.Reason)
	}
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		return api.NewQuotaExceededError(quotaErr.Used, quotaErr.Limit, quotaErr.Plan)
	}
	switch {
	case errors.Is(err, ErrProviderBusy):
		return api.ErrProviderBusy
	case errors.Is(err, ErrProviderEmptyResult):
		return api.ErrProviderEmptyResult
	case errors.Is(err, ErrProviderUnavailable):
		return api.ErrProviderUnavailable
	}
	slog.Error("generating response", "error", err)
	return api.ErrInternalServer
}
