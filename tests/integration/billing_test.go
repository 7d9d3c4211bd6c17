//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func signedEvent(t *testing.T, id, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func subscription(customer, price, status string) map[string]any {
	return map[string]any{
		"id":                 "sub_" + customer,
		"object":             "subscription",
		"customer":           customer,
		"status":             status,
		"current_period_end": time.Now().Add(30 * 24 * time.Hour).Unix(),
		"items": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"id": "si_1", "object": "subscription_item", "price": map[string]any{"id": price, "object": "price"}},
			},
		},
	}
}

func postWebhook(t *testing.T, env *TestEnv, payload []byte, signature string) *http.Response {
	t.Helper()
	return doRaw(t, env, http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload), "",
		map[string]string{"Stripe-Signature": signature})
}

func linkCustomer(t *testing.T, env *TestEnv, userID uuid.UUID) string {
	t.Helper()
	ref := "cus_" + uuid.NewString()[:12]
	require.NoError(t, env.UserSvc.SetBillingCustomer(context.Background(), userID, ref))
	return ref
}

func TestWebhook_SubscriptionLifecycle(t *testing.T) {
	env := SetupTestEnv(t)
	userID, token := RegisterUser(t, env, UniqueEmail("billing"), "password123")
	customer := linkCustomer(t, env, userID)

	payload, sig := signedEvent(t, "evt_"+uuid.NewString(), "customer.subscription.updated",
		subscription(customer, "price_premium", "active"))

	resp := postWebhook(t, env, payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, ParseResponse(t, resp)["received"])

	resp = DoRequest(t, env, http.MethodGet, "/api/user/profile", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sub := ParseResponse(t, resp)["subscription"].(map[string]any)
	assert.Equal(t, "premium", sub["plan"])
	assert.Equal(t, "active", sub["status"])
	assert.NotNil(t, sub["currentPeriodEnd"])

	// Redelivery of the same event leaves state unchanged.
	resp = postWebhook(t, env, payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodGet, "/api/ai/usage", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 100, ParseResponse(t, resp)["usage"].(map[string]any)["limit"])

	payload, sig = signedEvent(t, "evt_"+uuid.NewString(), "customer.subscription.deleted",
		subscription(customer, "price_premium", "canceled"))
	resp = postWebhook(t, env, payload, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodGet, "/api/user/subscription", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := ParseResponse(t, resp)["current"].(map[string]any)
	assert.Equal(t, "free", current["planId"])
	assert.Equal(t, "canceled", current["status"])
	assert.Nil(t, current["currentPeriodEnd"])

	resp = DoRequest(t, env, http.MethodGet, "/api/user/activity?event_type=subscription_changed", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	assert.EqualValues(t, 1, result["total_count"])
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := SetupTestEnv(t)
	userID, token := RegisterUser(t, env, UniqueEmail("forged"), "password123")
	customer := linkCustomer(t, env, userID)

	payload, _ := signedEvent(t, "evt_"+uuid.NewString(), "customer.subscription.updated",
		subscription(customer, "price_enterprise", "active"))

	resp := postWebhook(t, env, payload, "t=1,v1=deadbeef")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "free", ParseResponse(t, resp)["user"].(map[string]any)["plan"])
}

func TestWebhook_UnknownCustomerIsAcknowledged(t *testing.T) {
	env := SetupTestEnv(t)

	payload, sig := signedEvent(t, "evt_"+uuid.NewString(), "customer.subscription.updated",
		subscription("cus_nobody", "price_basic", "active"))

	resp := postWebhook(t, env, payload, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestBillingWithoutGateway(t *testing.T) {
	env := SetupTestEnv(t)
	_, token := RegisterUser(t, env, UniqueEmail("nogateway"), "password123")

	resp := DoRequest(t, env, http.MethodGet, "/api/billing/plans", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, ParseResponse(t, resp)["plans"], 4)

	resp = DoRequest(t, env, http.MethodPost, "/api/billing/checkout-session", map[string]string{"planId": "basic"}, token)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}
