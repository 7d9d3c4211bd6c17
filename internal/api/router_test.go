package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"handler": name})
	}
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrUnauthorized)
	})
}

func passThrough(next http.Handler) http.Handler { return next }

func testHandlers() HandlerSet {
	return HandlerSet{
		Register:               named("register"),
		Login:                  named("login"),
		Me:                     named("me"),
		Logout:                 named("logout"),
		GenerateResponse:       named("generate"),
		Usage:                  named("usage"),
		Models:                 named("models"),
		CheckoutSession:        named("checkout"),
		PortalSession:          named("portal"),
		Webhook:                named("webhook"),
		Plans:                  named("plans"),
		Profile:                named("profile"),
		Subscription:           named("subscription"),
		Activity:               named("activity"),
		AuthMiddleware:         denyAll,
		OptionalAuthMiddleware: passThrough,
	}
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router := NewRouter(RouterConfig{}, testHandlers())

	public := []struct{ method, path, handler string }{
		{http.MethodPost, "/api/auth/register", "register"},
		{http.MethodPost, "/api/auth/login", "login"},
		{http.MethodGet, "/api/ai/models", "models"},
		{http.MethodGet, "/api/billing/plans", "plans"},
		{http.MethodPost, "/api/billing/webhook", "webhook"},
	}
	for _, tt := range public {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.handler)
		})
	}

	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodPost, "/api/ai/generate-response"},
		{http.MethodGet, "/api/ai/usage"},
		{http.MethodPost, "/api/billing/checkout-session"},
		{http.MethodPost, "/api/billing/portal-session"},
		{http.MethodGet, "/api/user/profile"},
		{http.MethodGet, "/api/user/subscription"},
		{http.MethodGet, "/api/user/activity"},
	}
	for _, tt := range protected {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(router, tt.method, tt.path).Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	rec := serve(NewRouter(RouterConfig{}, testHandlers()), http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Endpoint not found"}`, rec.Body.String())
}

func TestRouter_RateLimiterScopedToAPI(t *testing.T) {
	limited := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, ErrTooManyRequests)
		})
	}
	router := NewRouter(RouterConfig{RateLimiter: limited}, testHandlers())

	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/billing/plans").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live").Code)
}

func TestRouter_Readiness(t *testing.T) {
	checks := map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"nats":     nil,
	}
	router := NewRouter(RouterConfig{HealthChecks: checks}, testHandlers())

	rec := serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "healthy", "database": "healthy", "nats": "not configured"}, body)

	checks["database"] = func(context.Context) error { return errors.New("connection refused") }
	router = NewRouter(RouterConfig{HealthChecks: checks}, testHandlers())
	rec = serve(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unhealthy"`)
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	rec := serve(NewRouter(RouterConfig{}, testHandlers()), http.MethodGet, "/health/live")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
