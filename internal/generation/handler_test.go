package generation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/config"
	"github.com/replypilot/replypilot/internal/plans"
	"github.com/replypilot/replypilot/internal/usage"
	"github.com/replypilot/replypilot/internal/users"
)

func newHandler(env *serviceEnv) *Handler {
	return NewHandler(env.svc, plans.Default(config.StripeConfig{}))
}

func asUser(r *http.Request, u *users.User) *http.Request {
	return r.WithContext(auth.WithUser(r.Context(), u, nil))
}

func doGenerate(t *testing.T, h *Handler, u *users.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/generate-response", bytes.NewReader(b))
	if u != nil {
		req = asUser(req, u)
	}
	rec := httptest.NewRecorder()
	h.GenerateResponse(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGenerateResponse_OK(t *testing.T) {
	env := setupService(t)
	rec := doGenerate(t, newHandler(env), env.user, map[string]string{"reviewText": "Nice"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Thanks for visiting!", body["response"])
	u := body["usage"].(map[string]any)
	assert.EqualValues(t, 1, u["used"])
	assert.EqualValues(t, 5, u["limit"])
	assert.EqualValues(t, 4, u["remaining"])
	assert.Equal(t, "free", u["plan"])
}

func TestGenerateResponse_FreePlanAtLimit(t *testing.T) {
	env := setupService(t)
	env.ledger.rows[env.user.ID] = usage.Record{RequestsCount: 5}

	rec := doGenerate(t, newHandler(env), env.user, map[string]string{"reviewText": "Nice"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Daily limit reached", body["error"])
	assert.Equal(t, "You have reached your daily limit of 5 requests. Upgrade your plan for more.", body["message"])
	assert.Equal(t, map[string]any{"used": float64(5), "limit": float64(5), "plan": "free"}, body["usage"])
}

func TestGenerateResponse_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		providerEr error
		body       any
		wantStatus int
		wantError  string
	}{
		{"invalid input", nil, map[string]string{"reviewText": "   "}, http.StatusBadRequest, "Review text is required"},
		{"malformed json", nil, "not an object", http.StatusBadRequest, "bad request"},
		{"unavailable", ErrProviderUnavailable, map[string]string{"reviewText": "x"}, http.StatusBadGateway, "Failed to generate response. Please try again."},
		{"empty", ErrProviderEmptyResult, map[string]string{"reviewText": "x"}, http.StatusBadGateway, "No response generated"},
		{"busy", ErrProviderBusy, map[string]string{"reviewText": "x"}, http.StatusServiceUnavailable, "AI service is temporarily busy. Please try again in a moment."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t)
			env.provider.err = tt.providerEr

			rec := doGenerate(t, newHandler(env), env.user, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec)["error"])
			if tt.providerEr == ErrProviderBusy {
				assert.Equal(t, "5", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestGenerateResponse_RequiresUser(t *testing.T) {
	env := setupService(t)
	rec := doGenerate(t, newHandler(env), nil, map[string]string{"reviewText": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageHandler(t *testing.T) {
	env := setupService(t)
	env.ledger.rows[env.user.ID] = usage.Record{RequestsCount: 2, TokensUsed: 30}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/ai/usage", nil), env.user)
	rec := httptest.NewRecorder()
	newHandler(env).Usage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	u := decode(t, rec)["usage"].(map[string]any)
	assert.EqualValues(t, 2, u["used"])
	assert.EqualValues(t, 3, u["remaining"])
	assert.EqualValues(t, 30, u["tokensUsed"])
}

func TestModelsHandler(t *testing.T) {
	env := setupService(t)
	h := newHandler(env)

	rec := httptest.NewRecorder()
	h.Models(rec, httptest.NewRequest(http.MethodGet, "/api/ai/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "gpt-4", body["default"])
	assert.Len(t, body["models"], 3)
	assert.NotContains(t, body, "plan")

	env.user.Plan = plans.Basic
	rec = httptest.NewRecorder()
	h.Models(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/ai/models", nil), env.user))
	assert.Equal(t, "basic", decode(t, rec)["plan"])
}
