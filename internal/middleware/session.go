package middleware

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// SessionSource is the read side of the session gate.
type SessionSource interface {
	State() domain.AuthState
	Identity() (domain.Identity, bool)
}

// RequireSession admits a request only while the gate reports an
// authenticated, verified identity, and injects a UserContext for handlers.
func RequireSession(gate SessionSource) fiber.Handler {
	return func(c fiber.Ctx) error {
		state := gate.State()

		switch state.Status {
		case domain.AuthStatusLoading:
			c.Set("Retry-After", "1")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":  "session is loading",
				"status": state.Status,
			})
		case domain.AuthStatusUnverified:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":  "email not verified",
				"status": state.Status,
				"email":  state.Email,
			})
		case domain.AuthStatusAuthenticated:
		default:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "not signed in",
				"status": state.Status,
			})
		}

		identity, ok := gate.Identity()
		if !ok {
			// Signed out between the two reads.
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not signed in"})
		}

		c.Locals("identity", identity)
		c.Locals("user", &domain.UserContext{
			UserID: identity.ID,
			Email:  identity.Email,
		})
		return c.Next()
	}
}

// GetUserContext extracts the UserContext from Fiber locals.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	u, ok := c.Locals("user").(*domain.UserContext)
	if !ok {
		return nil
	}
	return u
}

// GetIdentity extracts the gate identity from Fiber locals.
func GetIdentity(c fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals("identity").(domain.Identity)
	return identity, ok
}
