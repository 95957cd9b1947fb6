package handler

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/middleware"
	"github.com/arturoeanton/bookverse/internal/port"
	"github.com/arturoeanton/bookverse/internal/service"
)

// ProfileHandler serves the signed-in user's profile settings.
type ProfileHandler struct {
	profiles *service.ProfileReconciler
	audit    port.AuditWriter
}

// NewProfileHandler creates a new profile handler. audit may be nil.
func NewProfileHandler(profiles *service.ProfileReconciler, audit port.AuditWriter) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, audit: audit}
}

// Register sets up profile routes on a session-protected router.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("/profile", h.Get)
	router.Put("/profile", h.Update)
}

// Get returns the profile of the signed-in user.
func (h *ProfileHandler) Get(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)

	p, err := h.profiles.Get(c.Context(), user.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}

// Update saves the settings form. Only fields present in the body change.
func (h *ProfileHandler) Update(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)

	var fields domain.ProfileFields
	if err := c.Bind().JSON(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	trim(fields.Name, fields.Email, fields.Location, fields.Website, fields.Bio)

	p, err := h.profiles.Update(c.Context(), user.UserID, fields)
	if err != nil {
		return writeError(c, err)
	}

	if h.audit != nil {
		details, _ := json.Marshal(fields)
		ip, ua := c.IP(), c.Get("User-Agent")
		go func() {
			if err := h.audit.WriteAudit(user.UserID, domain.AuditActionProfileUpdate, "profile", user.UserID, string(details), ip, ua); err != nil {
				slog.Error("failed to write audit log", "error", err)
			}
		}()
	}
	return c.JSON(p)
}

func trim(values ...*string) {
	for _, v := range values {
		if v != nil {
			*v = strings.TrimSpace(*v)
		}
	}
}
