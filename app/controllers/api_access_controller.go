package controllers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pwr-labs/pwr-access/internal/pkg/cache"
	"github.com/pwr-labs/pwr-access/internal/pkg/usercontext"
)

const accessStatusCacheTTL = 60 * time.Second

// HandleGetAccessStatus returns the caller's computed access verdict.
// Results are cached briefly in Redis; grant/revoke paths invalidate the
// entry so a fresh verdict is visible right after a change.
func HandleGetAccessStatus(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	cacheKey := cache.AccessStatusKey(userID)
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	svc, err := billingService()
	if err != nil {
		log.Printf("[AccessStatus] billing not configured: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status, err := svc.GetAccessStatus(ctx, userID)
	if err != nil {
		log.Printf("[AccessStatus] user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load access status",
		})
	}

	payload := fiber.Map{
		"is_valid":   status.IsValid,
		"expires_at": status.ExpiresAt,
	}
	if body, err := json.Marshal(payload); err == nil {
		if err := cache.Set(cacheKey, string(body), accessStatusCacheTTL); err != nil {
			log.Printf("[AccessStatus] cache write failed for user %d: %v", userID, err)
		}
	}

	return c.JSON(payload)
}

// HandleCreateCheckout creates a provider checkout preference for the
// caller's annual plan purchase and returns the redirect URL.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if userCtx.UserID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	svc, err := billingService()
	if err != nil {
		log.Printf("[CreateCheckout] billing not configured: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	pref, err := svc.CreateCheckout(ctx, userCtx.UserID, userCtx.Email)
	if err != nil {
		log.Printf("[CreateCheckout] user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "failed to create checkout",
		})
	}

	return c.JSON(fiber.Map{
		"ok":            true,
		"preference_id": pref.ID,
		"url":           pref.InitPoint,
		"sandbox_url":   pref.SandboxInitPoint,
	})
}
