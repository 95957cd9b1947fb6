package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/port"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInvalidCredentials), errors.Is(err, port.ErrNoSession):
		return fiber.StatusUnauthorized
	case errors.Is(err, port.ErrEmailNotVerified):
		return fiber.StatusForbidden
	case errors.Is(err, port.ErrInvalidIdentity), errors.Is(err, port.ErrProviderRejected):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrProfileNotFound),
		errors.Is(err, port.ErrBookNotFound),
		errors.Is(err, port.ErrEntryNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrProfileConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
