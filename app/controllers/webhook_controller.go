package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pwr-labs/pwr-access/internal/pkg/billing"
	"github.com/pwr-labs/pwr-access/internal/pkg/cache"
)

// HandleMercadoPagoWebhook processes provider payment notifications.
//
// Response policy: 401 only for missing/invalid signatures. Everything
// after a valid signature is acknowledged with 200 even on failure, so a
// transient internal fault cannot turn into a provider retry storm;
// correctness rests on the idempotent reconciliation transaction and
// recovery on admin reprocessing.
func HandleMercadoPagoWebhook(c *fiber.Ctx) error {
	resourceID, topic := extractWebhookEvent(c)
	if resourceID == "" {
		log.Print("[MercadoPagoWebhook] missing resource id, ignoring")
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	cfg, err := billingConfig()
	if err != nil {
		log.Printf("[MercadoPagoWebhook] billing not configured: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("not configured")
	}

	requestID := strings.TrimSpace(c.Get("x-request-id"))
	signature := strings.TrimSpace(c.Get("x-signature"))
	if err := billing.VerifyWebhookSignature(resourceID, requestID, signature, cfg.WebhookSecretTest, cfg.WebhookSecretProd); err != nil {
		if errors.Is(err, billing.ErrMissingSignature) {
			log.Print("[MercadoPagoWebhook] signature missing or unparseable")
			return c.Status(fiber.StatusUnauthorized).SendString("missing signature")
		}
		log.Print("[MercadoPagoWebhook] invalid signature")
		return c.Status(fiber.StatusUnauthorized).SendString("invalid signature")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc, err := billingService()
	if err != nil {
		log.Printf("[MercadoPagoWebhook] billing not configured: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("not configured")
	}

	paymentID, err := svc.ResolveEventPaymentID(ctx, resourceID, topic)
	if err != nil {
		log.Printf("[MercadoPagoWebhook] failed to resolve event %s (%s): %v", resourceID, topic, err)
		return c.Status(fiber.StatusOK).SendString("ok")
	}
	if paymentID == "" {
		log.Printf("[MercadoPagoWebhook] no payment id after resolving event %s, ignoring", resourceID)
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	payment, err := svc.FetchPayment(ctx, paymentID)
	if err != nil {
		log.Printf("[MercadoPagoWebhook] failed to fetch payment %s: %v", paymentID, err)
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	result, err := svc.ReconcilePayment(ctx, payment)
	if err != nil {
		log.Printf("[MercadoPagoWebhook] reconcile failed for payment %s: %v", paymentID, err)
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	switch result.ActionTaken {
	case billing.ActionGranted, billing.ActionRevoked:
		cache.InvalidateAccessStatus(result.UserID)
		log.Printf("[MercadoPagoWebhook] payment %s: %s (user %d, status %s)", paymentID, result.ActionTaken, result.UserID, result.Status)
	case billing.ActionIgnored:
		log.Printf("[MercadoPagoWebhook] payment %s ignored: %s", paymentID, result.IgnoreReason)
	default:
		log.Printf("[MercadoPagoWebhook] payment %s: %s", paymentID, result.ActionTaken)
	}

	return c.Status(fiber.StatusOK).SendString("ok")
}

// extractWebhookEvent pulls the resource id and topic from query or body,
// covering the provider's notification format variants.
func extractWebhookEvent(c *fiber.Ctx) (string, string) {
	resourceID := strings.TrimSpace(c.Query("id"))
	if resourceID == "" {
		resourceID = strings.TrimSpace(c.Query("data.id"))
	}

	topic := strings.TrimSpace(c.Query("topic"))
	if topic == "" {
		topic = strings.TrimSpace(c.Query("type"))
	}

	if body := c.Body(); len(body) > 0 {
		var raw struct {
			ID    json.Number `json:"id"`
			Topic string      `json:"topic"`
			Type  string      `json:"type"`
			Data  struct {
				ID json.Number `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &raw); err == nil {
			if resourceID == "" {
				resourceID = strings.TrimSpace(raw.Data.ID.String())
			}
			if resourceID == "" {
				resourceID = strings.TrimSpace(raw.ID.String())
			}
			if topic == "" {
				topic = strings.TrimSpace(raw.Topic)
			}
			if topic == "" {
				topic = strings.TrimSpace(raw.Type)
			}
		}
	}

	return resourceID, strings.ToLower(topic)
}
