package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwr-labs/pwr-access/internal/pkg/billing"
)

func setWebhookEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MP_ACCESS_TOKEN", "token")
	t.Setenv("MP_WEBHOOK_SECRET_TEST", "hook-secret-test")
	t.Setenv("MP_WEBHOOK_SECRET_PROD", "hook-secret-prod")
	t.Setenv("APP_BASE_URL", "https://app.example.com")
	t.Setenv("ANNUAL_PRICE_BRL", "15000")
}

func newWebhookApp() *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/webhooks/mercadopago", HandleMercadoPagoWebhook)
	return app
}

func signWebhook(resourceID, requestID, ts, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(billing.BuildManifest(resourceID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_MissingResourceIDIsAcked(t *testing.T) {
	setWebhookEnv(t)
	app := newWebhookApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	setWebhookEnv(t)
	app := newWebhookApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago?id=123&topic=payment", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	setWebhookEnv(t)
	app := newWebhookApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago?id=123&topic=payment", nil)
	req.Header.Set("x-request-id", "req-1")
	req.Header.Set("x-signature", signWebhook("123", "req-1", "1700000000", "some-other-secret"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_TamperedResourceRejected(t *testing.T) {
	setWebhookEnv(t)
	app := newWebhookApp()

	// Signature is valid for resource 123 but the request claims 456.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago?id=456&topic=payment", nil)
	req.Header.Set("x-request-id", "req-1")
	req.Header.Set("x-signature", signWebhook("123", "req-1", "1700000000", "hook-secret-prod"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestExtractWebhookEvent(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		body      string
		wantID    string
		wantTopic string
	}{
		{
			name:      "query id and topic",
			url:       "/hook?id=123&topic=merchant_order",
			wantID:    "123",
			wantTopic: "merchant_order",
		},
		{
			name:      "query data.id and type",
			url:       "/hook?data.id=456&type=payment",
			wantID:    "456",
			wantTopic: "payment",
		},
		{
			name:      "body data id and type",
			url:       "/hook",
			body:      `{"type":"payment","data":{"id":789}}`,
			wantID:    "789",
			wantTopic: "payment",
		},
		{
			name:      "body top-level id and topic",
			url:       "/hook",
			body:      `{"topic":"merchant_order","id":"321"}`,
			wantID:    "321",
			wantTopic: "merchant_order",
		},
		{
			name:      "query wins over body",
			url:       "/hook?id=111&topic=payment",
			body:      `{"type":"merchant_order","data":{"id":999}}`,
			wantID:    "111",
			wantTopic: "payment",
		},
		{
			name: "nothing present",
			url:  "/hook",
			body: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var gotID, gotTopic string
			app.Post("/hook", func(c *fiber.Ctx) error {
				gotID, gotTopic = extractWebhookEvent(c)
				return c.SendStatus(fiber.StatusNoContent)
			})

			var body *bytes.Reader
			if tt.body != "" {
				body = bytes.NewReader([]byte(tt.body))
			} else {
				body = bytes.NewReader(nil)
			}
			req := httptest.NewRequest(http.MethodPost, tt.url, body)
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

			assert.Equal(t, tt.wantID, gotID)
			assert.Equal(t, tt.wantTopic, gotTopic)
		})
	}
}
