package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

// SignUpRequest carries the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	Location string `json:"location"`
}

// SignUpResult reports the created identity and whether the user must confirm
// their email before a session is issued.
type SignUpResult struct {
	Identity             domain.Identity `json:"identity"`
	ConfirmationRequired bool            `json:"confirmation_required"`
	Profile              *domain.Profile `json:"profile,omitempty"`
}

// AuthService handles the explicit authentication actions a user initiates.
// Failures are returned to the caller; state changes reach the SessionGate
// through the provider's event stream.
type AuthService struct {
	provider port.IdentityProvider
	profiles *ProfileReconciler
	audit    port.AuditWriter
}

// NewAuthService creates a new authentication service. audit may be nil.
func NewAuthService(provider port.IdentityProvider, profiles *ProfileReconciler, audit port.AuditWriter) *AuthService {
	return &AuthService{provider: provider, profiles: profiles, audit: audit}
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, port.ErrInvalidCredentials
	}

	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	s.record(session.Identity.ID, domain.AuditActionSignIn)
	slog.Info("user signed in", "user_id", session.Identity.ID, "verified", session.Identity.Verified())
	return session, nil
}

// SignUp registers a new identity with profile metadata. When the backend
// confirms the email immediately the profile is ensured here and a failure
// is reported to the caller.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, port.ErrInvalidCredentials
	}

	metadata := map[string]any{
		domain.MetadataName:     req.Name,
		domain.MetadataBio:      req.Bio,
		domain.MetadataLocation: req.Location,
	}

	identity, session, err := s.provider.SignUp(ctx, email, req.Password, metadata)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	result := &SignUpResult{
		Identity:             *identity,
		ConfirmationRequired: session == nil || !identity.Verified(),
	}
	if result.ConfirmationRequired {
		slog.Info("user signed up, awaiting email confirmation", "user_id", identity.ID)
		return result, nil
	}

	profile, err := s.profiles.Ensure(ctx, *identity)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	result.Profile = profile
	s.record(identity.ID, domain.AuditActionSignIn)
	slog.Info("user signed up", "user_id", identity.ID)
	return result, nil
}

// SignOut ends the current session.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.record(userID, domain.AuditActionSignOut)
	return nil
}

// Refresh re-fetches the current identity, which is how a confirmed email
// becomes visible to the gate.
func (s *AuthService) Refresh(ctx context.Context) (*domain.Identity, error) {
	identity, err := s.provider.ReloadUser(ctx)
	if err != nil {
		if errors.Is(err, port.ErrNoSession) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return identity, nil
}

func (s *AuthService) record(userID, action string) {
	if s.audit == nil {
		return
	}
	if userID == "" {
		userID = "anonymous"
	}
	go func() {
		if err := s.audit.WriteAudit(userID, action, "auth", userID, "{}", "", ""); err != nil {
			slog.Error("failed to write audit log", "action", action, "error", err)
		}
	}()
}
