package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileConflict = errors.New("profile already exists")
	ErrBookNotFound    = errors.New("book not found")
	ErrEntryNotFound   = errors.New("library entry not found")

	ErrInvalidIdentity    = errors.New("identity has no identifier")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrNoSession          = errors.New("no active session")
	ErrProviderRejected   = errors.New("identity provider rejected the request")

	ErrUnauthorized = errors.New("unauthorized")
)

// Error kinds surfaced by the profile and session flows. They are joined
// with the underlying cause, so errors.Is matches both.
var (
	ErrSessionQuery  = errors.New("session query failed")
	ErrProfileLookup = errors.New("profile lookup failed")
	ErrProfileCreate = errors.New("profile create failed")
	ErrProfileUpdate = errors.New("profile update failed")
)
