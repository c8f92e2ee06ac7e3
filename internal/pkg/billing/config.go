package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pwr-labs/pwr-access/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.mercadopago.com"

	// MinAnnualPriceBRL is the floor for the configured annual price.
	// Misconfigured lower values are silently raised to it.
	MinAnnualPriceBRL = 12000

	defaultGrantDays = 365
	maxGrantDays     = 3650
)

// Config carries all billing configuration. It is built once at startup and
// passed into constructors; the engine never reads ambient state.
type Config struct {
	AccessToken       string
	WebhookSecretTest string
	WebhookSecretProd string

	APIBaseURL string
	AppBaseURL string

	// ExpectedAmount/ExpectedCurrency gate approved payments. A zero
	// amount disables the price guard.
	ExpectedAmount   float64
	ExpectedCurrency string

	// GrantDays is the entitlement extension per approved payment.
	GrantDays int
}

// NewConfigFromEnv builds the billing configuration from environment
// variables, applying the price floor and base-URL normalization.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		AccessToken:       strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		WebhookSecretTest: strings.TrimSpace(env.GetEnv("MP_WEBHOOK_SECRET_TEST", "")),
		WebhookSecretProd: strings.TrimSpace(env.GetEnv("MP_WEBHOOK_SECRET_PROD", "")),
		APIBaseURL:        strings.TrimRight(strings.TrimSpace(env.GetEnv("MP_API_BASE_URL", defaultAPIBaseURL)), "/"),
		ExpectedCurrency:  strings.ToUpper(strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", "BRL"))),
		GrantDays:         defaultGrantDays,
	}

	appBase := strings.TrimRight(strings.TrimSpace(env.GetEnv("APP_BASE_URL", "")), "/")
	if appBase == "" {
		return nil, errors.New("APP_BASE_URL is not configured")
	}
	if !strings.HasPrefix(strings.ToLower(appBase), "http://") && !strings.HasPrefix(strings.ToLower(appBase), "https://") {
		return nil, errors.New("APP_BASE_URL must start with http:// or https://")
	}
	cfg.AppBaseURL = appBase

	priceRaw := strings.TrimSpace(env.GetEnv("ANNUAL_PRICE_BRL", ""))
	if priceRaw == "" {
		return nil, errors.New("ANNUAL_PRICE_BRL is not configured")
	}
	price, err := strconv.ParseFloat(priceRaw, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("ANNUAL_PRICE_BRL is invalid: %q", priceRaw)
	}
	if price < MinAnnualPriceBRL {
		price = MinAnnualPriceBRL
	}
	cfg.ExpectedAmount = price

	if raw := strings.TrimSpace(env.GetEnv("BILLING_GRANT_DAYS", "")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 || days > maxGrantDays {
			return nil, fmt.Errorf("BILLING_GRANT_DAYS is invalid: %q", raw)
		}
		cfg.GrantDays = days
	}

	return cfg, nil
}
