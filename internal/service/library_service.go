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

const (
	defaultBookLimit = 20
	maxBookLimit     = 100
)

// LibraryService serves the book catalog and each profile's saved books.
type LibraryService struct {
	store    port.LibraryStore
	profiles *ProfileReconciler
	audit    port.AuditWriter
}

// NewLibraryService creates a library service. audit may be nil.
func NewLibraryService(store port.LibraryStore, profiles *ProfileReconciler, audit port.AuditWriter) *LibraryService {
	return &LibraryService{store: store, profiles: profiles, audit: audit}
}

// Books searches the catalog by title or author.
func (s *LibraryService) Books(ctx context.Context, query string, limit int) ([]domain.Book, error) {
	switch {
	case limit <= 0:
		limit = defaultBookLimit
	case limit > maxBookLimit:
		limit = maxBookLimit
	}
	books, err := s.store.SearchBooks(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return books, nil
}

// Book returns a single catalog entry.
func (s *LibraryService) Book(ctx context.Context, id string) (*domain.Book, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, port.ErrBookNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// Library lists the books saved by profileID.
func (s *LibraryService) Library(ctx context.Context, profileID string) ([]domain.LibraryEntry, error) {
	entries, err := s.store.ListLibrary(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	return entries, nil
}

// Add saves bookID to the identity's library. The profile row is ensured
// first because library entries reference it.
func (s *LibraryService) Add(ctx context.Context, identity domain.Identity, bookID string) (*domain.LibraryEntry, error) {
	if bookID == "" {
		return nil, port.ErrBookNotFound
	}
	if _, err := s.profiles.Ensure(ctx, identity); err != nil {
		return nil, err
	}

	entry, err := s.store.AddToLibrary(ctx, identity.ID, bookID)
	if err != nil {
		if errors.Is(err, port.ErrBookNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("add to library: %w", err)
	}

	s.record(identity.ID, domain.AuditActionLibraryAdd, bookID)
	slog.Info("book added to library", "profile_id", identity.ID, "book_id", bookID)
	return entry, nil
}

// Remove deletes bookID from the profile's library.
func (s *LibraryService) Remove(ctx context.Context, profileID, bookID string) error {
	if err := s.store.RemoveFromLibrary(ctx, profileID, bookID); err != nil {
		if errors.Is(err, port.ErrEntryNotFound) {
			return err
		}
		return fmt.Errorf("remove from library: %w", err)
	}
	s.record(profileID, domain.AuditActionLibraryRemove, bookID)
	return nil
}

func (s *LibraryService) record(userID, action, bookID string) {
	if s.audit == nil {
		return
	}
	go func() {
		if err := s.audit.WriteAudit(userID, action, "book", bookID, "{}", "", ""); err != nil {
			slog.Error("failed to write audit log", "action", action, "error", err)
		}
	}()
}
