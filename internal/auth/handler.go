package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/replypilot/replypilot/internal/api"
	inats "github.com/replypilot/replypilot/internal/nats"
	"github.com/replypilot/replypilot/internal/users"
)

// ActivityRecorder receives account activity. Recording is best-effort.
type ActivityRecorder interface {
	Record(ctx context.Context, event inats.AuditEvent)
}

type Handler struct {
	authSvc  *Service
	userSvc  *users.Service
	activity ActivityRecorder
	validate *validator.Validate
	compare  func(hash, password string) error
}

// NewHandler builds the auth handlers. activity may be nil.
func NewHandler(authSvc *Service, userSvc *users.Service, activity ActivityRecorder) *Handler {
	return &Handler{
		authSvc:  authSvc,
		userSvc:  userSvc,
		activity: activity,
		validate: validator.New(),
		compare:  ComparePassword,
	}
}

func (h *Handler) record(r *http.Request, user *users.User, eventType string) {
	if h.activity == nil || user == nil {
		return
	}
	h.activity.Record(r.Context(), inats.AuditEvent{
		OwnerUserID:  user.ID,
		EventType:    eventType,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		Details:      map[string]string{"ip": r.RemoteAddr, "user_agent": r.UserAgent()},
	})
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	Message string     `json:"message"`
	User    users.View `json:"user"`
	Token   string     `json:"token"`
}

var fieldMessages = map[string]string{
	"Email":    "Valid email is required",
	"Password": "Password must be between 6 and 72 characters",
	"Name":     "Name must be at most 100 characters",
}

func validationError(err error) *api.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := fieldMessages[verrs[0].Field()]; ok {
			return api.NewValidationError(msg)
		}
	}
	return api.ErrBadRequest
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Email = users.NormalizeEmail(req.Email)

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, validationError(err))
		return
	}

	exists, err := h.userSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		api.HandleError(w, api.NewValidationError("Password is too long"))
		return
	}
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Create(r.Context(), req.Email, hash, req.Name)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			api.HandleError(w, api.ErrEmailAlreadyExists)
			return
		}
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	token, err := h.authSvc.IssueCredential(user.ID)
	if err != nil {
		slog.Error("issuing token", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	h.record(r, user, inats.EventUserRegistered)
	api.JSON(w, http.StatusCreated, SessionResponse{
		Message: "Account created successfully",
		User:    user.View(),
		Token:   token,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Email = users.NormalizeEmail(req.Email)

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("Email and password are required"))
		return
	}

	user, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		// Same bcrypt cost as a wrong password, so timing does not reveal accounts.
		_ = h.compare(unknownUserHash(), req.Password)
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := h.compare(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Error("checking password", "user_id", user.ID, "error", err)
		}
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	token, err := h.authSvc.IssueCredential(user.ID)
	if err != nil {
		slog.Error("issuing token", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.record(r, user, inats.EventUserLogin)
	api.JSON(w, http.StatusOK, SessionResponse{
		Message: "Login successful",
		User:    user.View(),
		Token:   token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"user": user.View()})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Revoke(r.Context(), claims); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.record(r, CurrentUser(r.Context()), inats.EventUserLogout)
	api.JSONMessage(w, http.StatusOK, "Logged out successfully")
}
