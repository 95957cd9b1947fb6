package port

import (
	"context"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// IdentityProvider abstracts the hosted identity backend.
// Implementations own the provider session and push identity changes to
// subscribers; they make no profile decisions.
type IdentityProvider interface {
	// CurrentSession returns the active session, or nil when there is none.
	CurrentSession(ctx context.Context) (*domain.Session, error)

	// Subscribe opens a stream of identity-change events, delivered in
	// emission order until the subscription is closed.
	Subscribe() Subscription

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)

	// SignUp registers a new identity. The session is nil when the backend
	// requires email confirmation before issuing one.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, *domain.Session, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// ReloadUser re-fetches the identity of the current session.
	ReloadUser(ctx context.Context) (*domain.Identity, error)
}

// Subscription is a cancellable stream of identity-change events.
type Subscription interface {
	// Events yields events until Close is called; the channel is then closed.
	Events() <-chan domain.AuthEvent

	// Close releases the subscription. It is safe to call more than once.
	Close() error
}

// SessionCache persists the provider session across process restarts.
type SessionCache interface {
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	Clear(ctx context.Context) error
}

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
}
