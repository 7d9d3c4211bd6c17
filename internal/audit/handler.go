package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/auth"
	inats "github.com/replypilot/replypilot/internal/nats"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ListActivity returns the authenticated user's audit entries, newest first.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)

	entries, total, err := h.store.ListByOwner(r.Context(), user.ID, params)
	if err != nil {
		slog.Error("listing activity", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	switch sev := q.Get("severity"); sev {
	case inats.SeverityInfo, inats.SeverityWarn, inats.SeverityError:
		params.Severity = sev
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 && size <= 100 {
		params.PageSize = size
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		params.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		params.To = &t
	}

	return params.normalized()
}
