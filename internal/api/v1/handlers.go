package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pwr-labs/pwr-access/app/controllers"
	"github.com/pwr-labs/pwr-access/internal/pkg/middleware"
)

// APIServer implements the public v1 surface. Handlers delegate to the
// controllers so behavior stays consistent with the rest of the app.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostMercadoPagoWebhook receives provider payment notifications. The
// endpoint is public; authenticity is established by HMAC signature
// verification inside the controller.
func (s *APIServer) PostMercadoPagoWebhook(c *fiber.Ctx) error {
	return controllers.HandleMercadoPagoWebhook(c)
}

// GetAccessStatus returns the authenticated caller's access verdict.
func (s *APIServer) GetAccessStatus(c *fiber.Ctx) error {
	return controllers.HandleGetAccessStatus(c)
}

// PostCheckout creates a checkout preference for the annual plan.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return controllers.HandleCreateCheckout(c)
}

// GetAdminFindUser looks up a user by email.
func (s *APIServer) GetAdminFindUser(c *fiber.Ctx) error {
	return controllers.HandleAdminFindUserByEmail(c)
}

// GetAdminUserAccess returns entitlement, payment history, and the
// computed verdict for one user.
func (s *APIServer) GetAdminUserAccess(c *fiber.Ctx) error {
	return controllers.HandleAdminGetUserAccess(c)
}

// PostAdminGrant manually grants entitlement days.
func (s *APIServer) PostAdminGrant(c *fiber.Ctx) error {
	return controllers.HandleAdminGrantAccess(c)
}

// PostAdminRevoke manually revokes an entitlement.
func (s *APIServer) PostAdminRevoke(c *fiber.Ctx) error {
	return controllers.HandleAdminRevokeAccess(c)
}

// PostAdminReprocessPayment re-runs reconciliation for a stored payment.
func (s *APIServer) PostAdminReprocessPayment(c *fiber.Ctx) error {
	return controllers.HandleAdminReprocessPayment(c)
}

// RegisterHandlers attaches the v1 routes to the given router group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	// Webhook ingress is deliberately outside the API key middleware.
	router.Post("/webhooks/mercadopago", s.PostMercadoPagoWebhook)

	authed := router.Group("", middleware.APIKeyAuthMiddleware())

	access := authed.Group("/access", middleware.RequireAPIAuth)
	access.Get("/status", s.GetAccessStatus)
	access.Post("/checkout", s.PostCheckout)

	admin := authed.Group("/admin", middleware.RequireAPIAuth, middleware.RequireAdminAPI)
	admin.Get("/users/find", s.GetAdminFindUser)
	admin.Get("/users/:id/access", s.GetAdminUserAccess)
	admin.Post("/users/:id/grant", s.PostAdminGrant)
	admin.Post("/users/:id/revoke", s.PostAdminRevoke)
	admin.Post("/payments/:id/reprocess", s.PostAdminReprocessPayment)
}
