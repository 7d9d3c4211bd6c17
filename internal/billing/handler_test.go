package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/plans"
	"github.com/replypilot/replypilot/internal/users"
)

type fakeGateway struct {
	customers   int
	checkouts   []CheckoutRequest
	portalCalls []string
	err         error
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email, name string, userID uuid.UUID) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.customers++
	return "cus_created", nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.checkouts = append(g.checkouts, req)
	return &CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerRef, returnURL string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.portalCalls = append(g.portalCalls, customerRef+"|"+returnURL)
	return "https://portal.example/session", nil
}

type savedCustomers map[uuid.UUID]string

func (s savedCustomers) SetBillingCustomer(_ context.Context, id uuid.UUID, ref string) error {
	s[id] = ref
	return nil
}

type billingEnv struct {
	handler  *Handler
	gateway  *fakeGateway
	saved    savedCustomers
	store    *customerStore
	activity *activitySink
}

func setupBilling(t *testing.T, withGateway bool) *billingEnv {
	t.Helper()
	store := newCustomerStore()
	gw := &fakeGateway{}
	saved := savedCustomers{}
	activity := &activitySink{}
	var gateway Gateway
	if withGateway {
		gateway = gw
	}
	h := NewHandler(NewSync(testWebhookSecret, testRegistry(), store), gateway, testRegistry(), saved, activity, "https://app.example.com/")
	return &billingEnv{handler: h, gateway: gw, saved: saved, store: store, activity: activity}
}

func authed(t *testing.T, method string, body any, u *users.User) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/", &buf)
	if u != nil {
		req = req.WithContext(auth.WithUser(req.Context(), u, nil))
	}
	return req
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckoutSession_CreatesCustomerOnce(t *testing.T) {
	env := setupBilling(t, true)
	user := &users.User{ID: uuid.New(), Email: "a@example.com", Plan: plans.Free}

	rec := httptest.NewRecorder()
	env.handler.CheckoutSession(rec, authed(t, http.MethodPost, map[string]string{"planId": "premium"}, user))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"sessionId": "cs_1", "url": "https://checkout.example/cs_1"}, body(t, rec))
	assert.Equal(t, 1, env.gateway.customers)
	assert.Equal(t, "cus_created", env.saved[user.ID])

	require.Len(t, env.gateway.checkouts, 1)
	req := env.gateway.checkouts[0]
	assert.Equal(t, "cus_created", req.CustomerRef)
	assert.Equal(t, "price_premium", req.PriceRef)
	assert.Equal(t, "premium", req.PlanID)
	assert.Equal(t, "https://app.example.com/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://app.example.com/cancel", req.CancelURL)
	require.Len(t, env.activity.events, 1)
	assert.Equal(t, "checkout_started", env.activity.events[0].EventType)

	ref := "cus_existing"
	user.BillingCustomerRef = &ref
	rec = httptest.NewRecorder()
	env.handler.CheckoutSession(rec, authed(t, http.MethodPost, map[string]string{"planId": "basic"}, user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.gateway.customers)
	assert.Equal(t, "cus_existing", env.gateway.checkouts[1].CustomerRef)
}

func TestCheckoutSession_Rejections(t *testing.T) {
	user := &users.User{ID: uuid.New(), Email: "a@example.com", Plan: plans.Free}

	tests := []struct {
		name       string
		gateway    bool
		user       *users.User
		planID     string
		wantStatus int
		wantError  string
	}{
		{"unknown plan", true, user, "platinum", http.StatusBadRequest, "Invalid plan selected"},
		{"unpriced plan", true, user, "free", http.StatusBadRequest, "Invalid plan selected"},
		{"missing plan", true, user, "", http.StatusBadRequest, "Invalid plan selected"},
		{"billing disabled", false, user, "premium", http.StatusServiceUnavailable, "Billing is not configured"},
		{"anonymous", true, nil, "premium", http.StatusUnauthorized, "Authentication required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupBilling(t, tt.gateway)
			rec := httptest.NewRecorder()
			env.handler.CheckoutSession(rec, authed(t, http.MethodPost, map[string]string{"planId": tt.planID}, tt.user))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, body(t, rec)["error"])
			assert.Empty(t, env.gateway.checkouts)
		})
	}
}

func TestCheckoutSession_GatewayFailure(t *testing.T) {
	env := setupBilling(t, true)
	env.gateway.err = errors.New("stripe down")
	user := &users.User{ID: uuid.New(), Email: "a@example.com"}

	rec := httptest.NewRecorder()
	env.handler.CheckoutSession(rec, authed(t, http.MethodPost, map[string]string{"planId": "basic"}, user))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to create checkout session", body(t, rec)["error"])
}

func TestPortalSession(t *testing.T) {
	env := setupBilling(t, true)
	user := &users.User{ID: uuid.New(), Email: "a@example.com"}

	rec := httptest.NewRecorder()
	env.handler.PortalSession(rec, authed(t, http.MethodPost, nil, user))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No active subscription found", body(t, rec)["error"])

	ref := "cus_1"
	user.BillingCustomerRef = &ref
	rec = httptest.NewRecorder()
	env.handler.PortalSession(rec, authed(t, http.MethodPost, nil, user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.example/session", body(t, rec)["url"])
	assert.Equal(t, []string{"cus_1|https://app.example.com"}, env.gateway.portalCalls)
}

func TestWebhookHandler(t *testing.T) {
	env := setupBilling(t, false)
	env.store.add("cus_1", plans.Free)

	payload := eventJSON(t, "evt_h", "customer.subscription.updated", subscriptionObject("cus_1", "price_enterprise", "active", 0))

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sign(payload))
	rec := httptest.NewRecorder()
	env.handler.Webhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"received": true}, body(t, rec))
	assert.Equal(t, plans.Enterprise, env.store.snapshot("cus_1").Plan)

	req = httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec = httptest.NewRecorder()
	env.handler.Webhook(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Webhook signature verification failed", body(t, rec)["error"])
}

func TestWebhookHandler_ProcessingFailure(t *testing.T) {
	env := setupBilling(t, false)
	env.store.add("cus_1", plans.Free)
	env.store.failWith = errors.New("db down")

	payload := eventJSON(t, "evt_f", "customer.subscription.updated", subscriptionObject("cus_1", "price_basic", "active", 0))
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sign(payload))
	rec := httptest.NewRecorder()
	env.handler.Webhook(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Webhook processing failed", body(t, rec)["error"])
}

func TestWebhookHandler_OversizedBody(t *testing.T) {
	env := setupBilling(t, false)
	env.store.add("cus_1", plans.Free)

	payload := eventJSON(t, "evt_big", "customer.subscription.updated", subscriptionObject("cus_1", "price_basic", "active", 0))
	padded := append(bytes.Repeat([]byte(" "), maxWebhookBody), payload...)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(padded))
	req.Header.Set("Stripe-Signature", sign(padded))
	rec := httptest.NewRecorder()
	env.handler.Webhook(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", body(t, rec)["error"])
	assert.Equal(t, plans.Free, env.store.snapshot("cus_1").Plan)
}

func TestPlansHandler(t *testing.T) {
	env := setupBilling(t, false)
	rec := httptest.NewRecorder()
	env.handler.Plans(rec, httptest.NewRequest(http.MethodGet, "/api/billing/plans", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Plans []PlanView `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Plans, 4)
	assert.Equal(t, "free", out.Plans[0].ID)
	assert.False(t, out.Plans[0].HasBillingPrice)
	assert.Equal(t, 5, out.Plans[0].DailyLimit)
	assert.Equal(t, "enterprise", out.Plans[3].ID)
	assert.True(t, out.Plans[3].HasBillingPrice)
	assert.InDelta(t, 49.99, out.Plans[3].PriceMonthly, 0.001)
}
