package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pwr-labs/pwr-access/app/repository"
	"github.com/pwr-labs/pwr-access/internal/pkg/billing"
	"github.com/pwr-labs/pwr-access/internal/pkg/cache"
	"github.com/pwr-labs/pwr-access/internal/pkg/usercontext"
)

var adminValidate = validator.New()

type grantAccessRequest struct {
	Days   int    `json:"days" validate:"required,min=1,max=3650"`
	Reason string `json:"reason" validate:"max=500"`
}

type revokeAccessRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// HandleAdminFindUserByEmail looks a user up by email address.
func HandleAdminFindUserByEmail(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email is required",
		})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user not found",
			})
		}
		log.Printf("[AdminFindUser] lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "lookup failed",
		})
	}

	return c.JSON(fiber.Map{
		"id":     user.ID,
		"name":   user.Name,
		"email":  user.Email,
		"status": user.Status,
		"role":   user.Role,
	})
}

// HandleAdminGetUserAccess returns a user's entitlement together with
// their recent payment history and the computed access verdict.
func HandleAdminGetUserAccess(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	svc, err := billingService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	ent, payments, status, err := svc.GetUserAccess(ctx, uint(userID))
	if err != nil {
		log.Printf("[AdminGetUserAccess] user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load access",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":     userID,
		"entitlement": ent,
		"payments":    payments,
		"access":      status,
	})
}

// HandleAdminGrantAccess manually grants entitlement days to a user.
func HandleAdminGrantAccess(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	var req grantAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := adminValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "days must be between 1 and 3650",
		})
	}

	svc, err := billingService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	actor := usercontext.GetUserContext(c)
	result, err := svc.GrantAccess(ctx, actor.UserID, uint(userID), req.Days, req.Reason)
	if err != nil {
		log.Printf("[AdminGrantAccess] user %d by %d: %v", userID, actor.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "grant failed",
		})
	}

	cache.InvalidateAccessStatus(uint(userID))

	return c.JSON(fiber.Map{
		"ok":          true,
		"user_id":     userID,
		"expires_at":  result.NewExpiresAt,
		"entitlement": result.NextEntitlement,
	})
}

// HandleAdminRevokeAccess manually revokes a user's entitlement.
func HandleAdminRevokeAccess(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	var req revokeAccessRequest
	_ = c.BodyParser(&req)
	if err := adminValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reason too long",
		})
	}

	svc, err := billingService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	actor := usercontext.GetUserContext(c)
	result, err := svc.RevokeAccess(ctx, actor.UserID, uint(userID), req.Reason)
	if err != nil {
		log.Printf("[AdminRevokeAccess] user %d by %d: %v", userID, actor.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "revoke failed",
		})
	}

	cache.InvalidateAccessStatus(uint(userID))

	return c.JSON(fiber.Map{
		"ok":          true,
		"user_id":     userID,
		"entitlement": result.NextEntitlement,
	})
}

// HandleAdminReprocessPayment re-fetches a payment from the provider and
// runs it through reconciliation again. Unlike the webhook path, provider
// and reconciliation errors surface to the caller here.
func HandleAdminReprocessPayment(c *fiber.Ctx) error {
	paymentID := strings.TrimSpace(c.Params("id"))
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payment id",
		})
	}

	svc, err := billingService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "billing not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	actor := usercontext.GetUserContext(c)
	result, err := svc.ReprocessPayment(ctx, actor.UserID, paymentID)
	if err != nil {
		log.Printf("[AdminReprocessPayment] payment %s by %d: %v", paymentID, actor.UserID, err)
		if errors.Is(err, billing.ErrProviderUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "payment provider unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "reprocess failed",
		})
	}

	if result.UserID != 0 {
		cache.InvalidateAccessStatus(result.UserID)
	}

	resp := fiber.Map{
		"ok":           true,
		"payment_id":   paymentID,
		"user_id":      result.UserID,
		"status":       result.Status,
		"action_taken": result.ActionTaken,
	}
	if result.IgnoreReason != "" {
		resp["ignore_reason"] = result.IgnoreReason
	}
	if result.NewExpiresAt != nil {
		resp["new_expires_at"] = result.NewExpiresAt
	}
	return c.JSON(resp)
}

