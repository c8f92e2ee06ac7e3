package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MercadoPagoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &MercadoPagoClient{
		AccessToken: "test-token",
		APIBaseURL:  srv.URL,
		HTTPClient:  srv.Client(),
	}
}

func TestGetPayment_Normalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 123,
			"status": "Approved",
			"status_detail": "Accredited",
			"transaction_amount": 15000,
			"currency_id": "brl",
			"external_reference": " 42 ",
			"date_approved": "2026-02-10T12:00:00.000-03:00",
			"date_created": "2026-02-10T11:59:00.000-03:00",
			"metadata": {"uid": "42", "product": "pwr_annual"},
			"preference_id": "pref-1"
		}`))
	})

	p, err := client.GetPayment(context.Background(), "123")
	require.NoError(t, err)

	assert.Equal(t, "123", p.PaymentID)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "accredited", p.StatusDetail)
	assert.Equal(t, float64(15000), p.Amount)
	assert.Equal(t, "BRL", p.Currency)
	assert.Equal(t, "42", p.ExternalReference)
	assert.Equal(t, "42", p.MetadataUserID)
	assert.Equal(t, "pref-1", p.PreferenceID)
	assert.False(t, p.DateApproved.IsZero())
	assert.NotEmpty(t, p.RawJSON)
}

func TestGetPayment_BadDateDoesNotFail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "55", "status": "approved", "date_approved": "not-a-date"}`))
	})

	p, err := client.GetPayment(context.Background(), "55")
	require.NoError(t, err)
	assert.True(t, p.DateApproved.IsZero())
}

func TestGetPayment_ProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetPayment(context.Background(), "123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestResolveMerchantOrderPayment(t *testing.T) {
	t.Run("prefers approved payment", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/merchant_orders/900", r.URL.Path)
			_, _ = w.Write([]byte(`{"id": 900, "payments": [
				{"id": 1, "status": "rejected"},
				{"id": 2, "status": "approved"}
			]}`))
		})

		id, err := client.ResolveMerchantOrderPayment(context.Background(), "900")
		require.NoError(t, err)
		assert.Equal(t, "2", id)
	})

	t.Run("falls back to first payment", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id": 900, "payments": [
				{"id": 7, "status": "pending"},
				{"id": 8, "status": "in_process"}
			]}`))
		})

		id, err := client.ResolveMerchantOrderPayment(context.Background(), "900")
		require.NoError(t, err)
		assert.Equal(t, "7", id)
	})

	t.Run("empty order", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id": 900, "payments": []}`))
		})

		_, err := client.ResolveMerchantOrderPayment(context.Background(), "900")
		assert.True(t, errors.Is(err, ErrNoPaymentInOrder))
	})
}

func TestCreatePreference(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{
			"id": "pref-abc",
			"init_point": "https://mp.example/init",
			"sandbox_init_point": "https://mp.example/sandbox"
		}`))
	})

	cfg := &Config{
		AppBaseURL:       "https://app.example.com",
		ExpectedAmount:   15000,
		ExpectedCurrency: "BRL",
		GrantDays:        365,
	}

	pref, err := client.CreatePreference(context.Background(), cfg, PreferenceRequest{UserID: 42, Email: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "pref-abc", pref.ID)
	assert.Equal(t, "https://mp.example/init", pref.InitPoint)
	assert.Equal(t, "https://mp.example/sandbox", pref.SandboxInitPoint)

	assert.Equal(t, "42", captured["external_reference"])
	assert.Equal(t, "https://app.example.com/api/v1/webhooks/mercadopago", captured["notification_url"])
	meta, ok := captured["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "42", meta["uid"])
	assert.Equal(t, "pwr_annual", meta["product"])
	payer, ok := captured["payer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "buyer@example.com", payer["email"])
}

func TestParseProviderDate(t *testing.T) {
	got := parseProviderDate("2026-02-10T12:00:00.000-03:00")
	require.False(t, got.IsZero())
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.February, got.Month())

	assert.True(t, parseProviderDate("").IsZero())
	assert.True(t, parseProviderDate("garbage").IsZero())
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "R$ 0,00"},
		{in: 99.9, want: "R$ 99,90"},
		{in: 1200, want: "R$ 1.200,00"},
		{in: 15000, want: "R$ 15.000,00"},
		{in: 1234567.89, want: "R$ 1.234.567,89"},
		{in: -42.5, want: "-R$ 42,50"},
	}
	for _, tt := range tests {
		if got := FormatBRL(tt.in); got != tt.want {
			t.Fatalf("FormatBRL(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnnualPlanTitle(t *testing.T) {
	got := AnnualPlanTitle(1200)
	assert.Equal(t, "PWR - Acesso anual (R$ 100,00/mes | R$ 1.200,00/ano)", got)
}
