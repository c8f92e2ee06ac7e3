package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MercadoPagoClient talks to the Mercado Pago REST API. Calls are
// single-shot: the engine never retries outbound requests, failed webhook
// lookups rely on provider-side retry or admin reprocessing.
type MercadoPagoClient struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewMercadoPagoClient creates a provider client from billing configuration.
func NewMercadoPagoClient(cfg *Config) *MercadoPagoClient {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	return &MercadoPagoClient{
		AccessToken: cfg.AccessToken,
		APIBaseURL:  base,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
	ExternalReference string      `json:"external_reference"`
	DateApproved      string      `json:"date_approved"`
	DateCreated       string      `json:"date_created"`
	Metadata          struct {
		UID     string `json:"uid"`
		Product string `json:"product"`
	} `json:"metadata"`
	Order struct {
		ID json.Number `json:"id"`
	} `json:"order"`
	PreferenceID string `json:"preference_id"`
}

type mpMerchantOrder struct {
	ID       json.Number `json:"id"`
	Payments []struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	} `json:"payments"`
}

// GetPayment fetches the canonical payment resource and normalizes it.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*NormalizedPayment, error) {
	body, err := c.get(ctx, "/v1/payments/"+strings.TrimSpace(paymentID))
	if err != nil {
		return nil, err
	}

	var raw mpPayment
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode payment %s: %w", paymentID, err)
	}

	id := strings.TrimSpace(raw.ID.String())
	if id == "" {
		id = strings.TrimSpace(paymentID)
	}
	preferenceID := strings.TrimSpace(raw.PreferenceID)
	if preferenceID == "" {
		preferenceID = strings.TrimSpace(raw.Order.ID.String())
	}

	return &NormalizedPayment{
		PaymentID:         id,
		Status:            strings.ToLower(strings.TrimSpace(raw.Status)),
		StatusDetail:      strings.ToLower(strings.TrimSpace(raw.StatusDetail)),
		Amount:            raw.TransactionAmount,
		Currency:          strings.ToUpper(strings.TrimSpace(raw.CurrencyID)),
		ExternalReference: strings.TrimSpace(raw.ExternalReference),
		MetadataUserID:    strings.TrimSpace(raw.Metadata.UID),
		PreferenceID:      preferenceID,
		DateApproved:      parseProviderDate(raw.DateApproved),
		DateCreated:       parseProviderDate(raw.DateCreated),
		RawJSON:           string(body),
	}, nil
}

// ResolveMerchantOrderPayment resolves a merchant_order event to a payment
// id: the first approved payment wins, falling back to the first payment in
// the list. Returns ErrNoPaymentInOrder when the order carries none.
func (c *MercadoPagoClient) ResolveMerchantOrderPayment(ctx context.Context, orderID string) (string, error) {
	body, err := c.get(ctx, "/merchant_orders/"+strings.TrimSpace(orderID))
	if err != nil {
		return "", err
	}

	var order mpMerchantOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return "", fmt.Errorf("decode merchant order %s: %w", orderID, err)
	}
	if len(order.Payments) == 0 {
		return "", ErrNoPaymentInOrder
	}
	for _, p := range order.Payments {
		if strings.ToLower(strings.TrimSpace(p.Status)) == "approved" {
			if id := strings.TrimSpace(p.ID.String()); id != "" {
				return id, nil
			}
		}
	}
	id := strings.TrimSpace(order.Payments[0].ID.String())
	if id == "" {
		return "", ErrNoPaymentInOrder
	}
	return id, nil
}

// CreatePreference creates a checkout preference for the annual plan and
// returns the provider's init point URLs.
func (c *MercadoPagoClient) CreatePreference(ctx context.Context, cfg *Config, req PreferenceRequest) (*Preference, error) {
	uid := strconv.FormatUint(uint64(req.UserID), 10)
	payload := map[string]any{
		"items": []map[string]any{
			{
				"title":      AnnualPlanTitle(cfg.ExpectedAmount),
				"quantity":   1,
				"unit_price": cfg.ExpectedAmount,
			},
		},
		"external_reference": uid,
		"back_urls": map[string]string{
			"success": cfg.AppBaseURL + "/billing/success",
			"pending": cfg.AppBaseURL + "/billing/pending",
			"failure": cfg.AppBaseURL + "/billing/failure",
		},
		"notification_url": cfg.AppBaseURL + "/api/v1/webhooks/mercadopago",
		"auto_return":      "approved",
		"payment_methods": map[string]any{
			"installments": 12,
		},
		"metadata": map[string]string{
			"uid":     uid,
			"product": "pwr_annual",
		},
	}
	if req.Email != "" {
		payload["payer"] = map[string]string{"email": req.Email}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", fmt.Sprintf("%s-%s", uid, uuid.NewString()))

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: create preference status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(respBody))
	}

	var out Preference
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MercadoPagoClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s status=%d body=%s", ErrProviderUnavailable, path, resp.StatusCode, string(body))
	}
	return body, nil
}

// parseProviderDate parses a provider timestamp, returning the zero time on
// absent or malformed input. Bad dates must never abort reconciliation.
func parseProviderDate(value string) time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AnnualPlanTitle renders the checkout line item title with the monthly
// equivalent, e.g. "PWR - Acesso anual (R$ 100,00/mes | R$ 1.200,00/ano)".
func AnnualPlanTitle(annualPrice float64) string {
	return fmt.Sprintf("PWR - Acesso anual (%s/mes | %s/ano)",
		FormatBRL(annualPrice/12), FormatBRL(annualPrice))
}

// FormatBRL formats a value as pt-BR currency: dot thousand separators and
// a comma decimal separator.
func FormatBRL(value float64) string {
	neg := value < 0
	cents := int64(math.Round(math.Abs(value) * 100))
	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), frac)
}
