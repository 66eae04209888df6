package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePreference(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer mp-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp.example/checkout/pref-1"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AccessToken: "mp-token"})
	pref, err := c.CreatePreference(context.Background(), PreferenceRequest{
		Title:             "Conference ticket",
		UnitPrice:         decimal.NewFromInt(20),
		Currency:          "PEN",
		ExternalReference: "user-1",
		UserID:            "user-1",
		NotificationURL:   "https://site.example/v1/webhooks/payment",
		SuccessURL:        "https://site.example/confirmation",
		FailureURL:        "https://site.example/error",
		PendingURL:        "https://site.example/confirmation",
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", pref.ID)
	assert.Equal(t, "https://mp.example/checkout/pref-1", pref.InitPoint)

	items := got["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, float64(20), item["unit_price"])
	assert.Equal(t, float64(1), item["quantity"])
	assert.Equal(t, "user-1", got["external_reference"])
	assert.Equal(t, "approved", got["auto_return"])
	assert.Equal(t, map[string]any{"user_id": "user-1"}, got["metadata"])
}

func TestCreatePreference_SandboxFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pref-2","sandbox_init_point":"https://sandbox.example/pref-2"}`))
	}))
	defer srv.Close()

	pref, err := NewClient(Config{BaseURL: srv.URL}).CreatePreference(context.Background(), PreferenceRequest{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.example/pref-2", pref.InitPoint)
}

func TestCreatePreference_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid access token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CreatePreference(context.Background(), PreferenceRequest{Title: "t"})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123456", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": 123456,
			"status": "approved",
			"payment_method_id": "visa",
			"date_approved": "2026-03-14T10:20:30.000-05:00",
			"transaction_amount": 20.4,
			"fee_details": [{"type":"mercadopago_fee","amount":1.19}],
			"transaction_details": {"net_received_amount": 19.21},
			"installments": 1,
			"metadata": {"user_id": "user-1"}
		}`))
	}))
	defer srv.Close()

	p, err := NewClient(Config{BaseURL: srv.URL}).GetPayment(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "123456", p.ID.String())
	assert.Equal(t, StatusApproved, p.Status)
	assert.Equal(t, "visa", p.PaymentMethodID)
	assert.Equal(t, "user-1", p.UserID())
	assert.True(t, p.Fee().Equal(decimal.RequireFromString("1.19")))
	assert.True(t, p.TransactionDetails.NetReceivedAmount.Equal(decimal.RequireFromString("19.21")))
	require.NotNil(t, p.Installments)
	assert.Equal(t, 1, *p.Installments)
	require.NotNil(t, p.DateApproved)
	assert.True(t, p.DateApproved.Equal(time.Date(2026, 3, 14, 15, 20, 30, 0, time.UTC)))
}

func TestGetPayment_NoMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "status": "pending", "date_approved": null, "fee_details": []}`))
	}))
	defer srv.Close()

	p, err := NewClient(Config{BaseURL: srv.URL}).GetPayment(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, p.UserID())
	assert.Nil(t, p.DateApproved)
	assert.True(t, p.Fee().IsZero())
}

func TestGetPayment_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url}).GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusApproved, StatusRejected, StatusCancelled, StatusRefunded, StatusChargedBack} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{StatusPending, StatusInProcess, StatusAuthorized, StatusInMediation, ""} {
		assert.False(t, IsTerminal(s), s)
	}
}
