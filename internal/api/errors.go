package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// AppError is an error with a client-safe message. Details are merged into
// the JSON error body next to "error".
type AppError struct {
	Code       int            `json:"-"`
	Message    string         `json:"error"`
	Details    map[string]any `json:"-"`
	RetryAfter int            `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest          = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized        = &AppError{Code: http.StatusUnauthorized, Message: "Authentication required"}
	ErrInvalidToken        = &AppError{Code: http.StatusUnauthorized, Message: "Invalid or expired token"}
	ErrInternalServer      = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidCredentials  = &AppError{Code: http.StatusUnauthorized, Message: "Invalid email or password"}
	ErrEmailAlreadyExists  = &AppError{Code: http.StatusConflict, Message: "An account with this email already exists"}
	ErrSignatureInvalid    = &AppError{Code: http.StatusBadRequest, Message: "Webhook signature verification failed"}
	ErrProviderUnavailable = &AppError{Code: http.StatusBadGateway, Message: "Failed to generate response. Please try again."}
	ErrProviderBusy        = &AppError{Code: http.StatusServiceUnavailable, Message: "AI service is temporarily busy. Please try again in a moment.", RetryAfter: 5}
	ErrProviderEmptyResult = &AppError{Code: http.StatusBadGateway, Message: "No response generated"}
	ErrBillingDisabled     = &AppError{Code: http.StatusServiceUnavailable, Message: "Billing is not configured"}
	ErrTooManyRequests     = &AppError{Code: http.StatusTooManyRequests, Message: "Too many requests, please try again later."}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// NewQuotaExceededError builds the 429 body clients use to render the limit.
func NewQuotaExceededError(used, limit int, plan string) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Message: "Daily limit reached",
		Details: map[string]any{
			"message": "You have reached your daily limit of " + strconv.Itoa(limit) + " requests. Upgrade your plan for more.",
			"usage": map[string]any{
				"used":  used,
				"limit": limit,
				"plan":  plan,
			},
		},
	}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}
		body := map[string]any{"error": appErr.Message}
		for k, v := range appErr.Details {
			body[k] = v
		}
		JSON(w, appErr.Code, body)
		return
	}
	slog.Error("unhandled error", "error", err)
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
