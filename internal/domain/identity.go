package domain

import "time"

// Identity is the authenticated principal as reported by the identity provider.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// Verified reports whether the provider has confirmed the identity's email.
func (i Identity) Verified() bool {
	return i.EmailConfirmedAt != nil && !i.EmailConfirmedAt.IsZero()
}

// MetadataString returns a string metadata value, or "" when missing or not a string.
func (i Identity) MetadataString(key string) string {
	if i.Metadata == nil {
		return ""
	}
	s, _ := i.Metadata[key].(string)
	return s
}

// Identity metadata keys supplied at sign-up.
const (
	MetadataName     = "name"
	MetadataBio      = "bio"
	MetadataLocation = "location"
)

// Session pairs an Identity with the tokens that keep it valid.
type Session struct {
	Identity     Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEventKind names an identity-change event pushed by the provider.
type AuthEventKind string

const (
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is one element of the provider's change stream. Identity is nil
// when the event carries no principal (e.g. sign-out).
type AuthEvent struct {
	Kind     AuthEventKind `json:"kind"`
	Identity *Identity     `json:"identity,omitempty"`
}

// AuthStatus is the application-level authentication state.
type AuthStatus string

const (
	AuthStatusLoading         AuthStatus = "loading"
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
	AuthStatusUnverified      AuthStatus = "unverified"
	AuthStatusAuthenticated   AuthStatus = "authenticated"
)

// StatusOf derives the authentication status from an identity, if any.
func StatusOf(identity *Identity) AuthStatus {
	switch {
	case identity == nil:
		return AuthStatusUnauthenticated
	case !identity.Verified():
		return AuthStatusUnverified
	default:
		return AuthStatusAuthenticated
	}
}

// AuthState is the value the gate publishes to the rest of the application.
// UserID is only populated when Status is authenticated; Email is also set
// while unverified so the notice screen can name the address.
type AuthState struct {
	Status    AuthStatus `json:"status"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	ChangedAt time.Time  `json:"changed_at"`
}

// UserContext is the authenticated user context injected into request handlers.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
