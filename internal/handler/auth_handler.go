package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/service"
)

const (
	stateCookie    = "bookverse_oidc_state"
	verifierCookie = "bookverse_oidc_verifier"
)

// SessionReader is the read side of the session gate.
type SessionReader interface {
	State() domain.AuthState
	Identity() (domain.Identity, bool)
}

// OIDCFlow is an external OpenID Connect sign-in.
type OIDCFlow interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (string, error)
}

// IDTokenExchanger signs in to the identity backend with an external id token.
type IDTokenExchanger interface {
	ExchangeIDToken(ctx context.Context, provider, idToken string) (*domain.Session, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	gate        SessionReader
	frontendURL string

	oidc      OIDCFlow
	exchanger IDTokenExchanger
	newState  func() string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *service.AuthService, gate SessionReader, frontendURL string) *AuthHandler {
	return &AuthHandler{authService: authService, gate: gate, frontendURL: frontendURL}
}

// WithOIDC enables the external sign-in routes.
func (h *AuthHandler) WithOIDC(flow OIDCFlow, exchanger IDTokenExchanger, newState func() string) *AuthHandler {
	h.oidc = flow
	h.exchanger = exchanger
	h.newState = newState
	return h
}

// Register sets up auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	auth := router.Group("/auth")
	auth.Get("/state", h.State)
	auth.Post("/signin", h.SignIn)
	auth.Post("/signup", h.SignUp)
	auth.Post("/signout", h.SignOut)
	auth.Post("/refresh", h.Refresh)

	if h.oidc != nil {
		auth.Get("/oidc/login", h.OIDCLogin)
		auth.Get("/oidc/callback", h.OIDCCallback)
	}
}

// State returns the gate's current authentication state.
func (h *AuthHandler) State(c fiber.Ctx) error {
	return c.JSON(h.gate.State())
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn authenticates with email and password.
func (h *AuthHandler) SignIn(c fiber.Ctx) error {
	var body credentials
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	session, err := h.authService.SignIn(c.Context(), body.Email, body.Password)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"user":       session.Identity,
		"status":     domain.StatusOf(&session.Identity),
		"expires_at": session.ExpiresAt,
	})
}

// SignUp registers a new account with profile metadata.
func (h *AuthHandler) SignUp(c fiber.Ctx) error {
	var body service.SignUpRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := h.authService.SignUp(c.Context(), body)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// SignOut ends the current session.
func (h *AuthHandler) SignOut(c fiber.Ctx) error {
	userID := ""
	if identity, ok := h.gate.Identity(); ok {
		userID = identity.ID
	}
	if err := h.authService.SignOut(c.Context(), userID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Refresh reloads the current identity, picking up email confirmation.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	identity, err := h.authService.Refresh(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"user":   identity,
		"status": domain.StatusOf(identity),
	})
}

// OIDCLogin redirects to the issuer's consent screen with state and PKCE.
func (h *AuthHandler) OIDCLogin(c fiber.Ctx) error {
	state := h.newState()
	verifier := h.newState()

	h.setFlowCookie(c, stateCookie, state)
	h.setFlowCookie(c, verifierCookie, verifier)

	return c.Redirect().To(h.oidc.AuthCodeURL(state, verifier))
}

// OIDCCallback validates state, exchanges the code and signs in to the backend.
func (h *AuthHandler) OIDCCallback(c fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing authorization code"})
	}

	expected := c.Cookies(stateCookie)
	verifier := c.Cookies(verifierCookie)
	c.ClearCookie(stateCookie, verifierCookie)

	if expected == "" || state != expected || verifier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid oauth state"})
	}

	idToken, err := h.oidc.Exchange(c.Context(), code, verifier)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := h.exchanger.ExchangeIDToken(c.Context(), h.oidc.Name(), idToken); err != nil {
		return writeError(c, err)
	}
	return c.Redirect().To(h.frontendURL + "/")
}

func (h *AuthHandler) setFlowCookie(c fiber.Ctx, name, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
}
