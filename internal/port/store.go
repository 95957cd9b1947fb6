package port

import (
	"context"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// ProfileStore is the row-oriented persistence contract for profiles.
// Implementations must enforce one row per profile ID.
type ProfileStore interface {
	// GetProfile returns ErrProfileNotFound when no row matches.
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)

	// InsertProfile returns ErrProfileConflict when a row with the same ID exists.
	InsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error)

	// UpdateProfile writes only the set fields and returns ErrProfileNotFound
	// when no row matches.
	UpdateProfile(ctx context.Context, id string, fields domain.ProfileFields) (*domain.Profile, error)
}

// LibraryStore persists the book catalog and personal libraries.
type LibraryStore interface {
	SearchBooks(ctx context.Context, query string, limit int) ([]domain.Book, error)
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListLibrary(ctx context.Context, profileID string) ([]domain.LibraryEntry, error)
	AddToLibrary(ctx context.Context, profileID, bookID string) (*domain.LibraryEntry, error)
	RemoveFromLibrary(ctx context.Context, profileID, bookID string) error
}

// AuditStore lists persisted audit records.
type AuditStore interface {
	AuditWriter
	ListAuditLogs(ctx context.Context, userID string, limit int, action string) ([]domain.AuditLog, error)
}
