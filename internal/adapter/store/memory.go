package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

// MemoryStore is an in-process store for development and tests. It enforces
// the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	books    map[string]domain.Book
	library  map[string][]domain.LibraryEntry // by profile ID
	audit    []domain.AuditLog
	now      func() time.Time
}

// NewMemoryStore creates an empty store holding the given catalog.
func NewMemoryStore(books ...domain.Book) *MemoryStore {
	s := &MemoryStore{
		profiles: make(map[string]domain.Profile),
		books:    make(map[string]domain.Book),
		library:  make(map[string][]domain.LibraryEntry),
		now:      time.Now,
	}
	for _, b := range books {
		s.books[b.ID] = b
	}
	return s
}

// GetProfile returns a copy of the stored profile.
func (s *MemoryStore) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, port.ErrProfileNotFound
	}
	return &p, nil
}

// InsertProfile stores p, rejecting a duplicate ID.
func (s *MemoryStore) InsertProfile(_ context.Context, p *domain.Profile) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return nil, port.ErrProfileConflict
	}
	row := *p
	now := s.now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	s.profiles[row.ID] = row
	return &row, nil
}

// UpdateProfile applies the set fields to an existing row.
func (s *MemoryStore) UpdateProfile(_ context.Context, id string, fields domain.ProfileFields) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, port.ErrProfileNotFound
	}
	if !fields.Empty() {
		fields.Apply(&p)
		p.UpdatedAt = s.now()
		s.profiles[id] = p
	}
	return &p, nil
}

// SearchBooks matches title or author case-insensitively.
func (s *MemoryStore) SearchBooks(_ context.Context, query string, limit int) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	books := []domain.Book{}
	for _, b := range s.books {
		if q == "" || strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

// GetBook returns a book by ID.
func (s *MemoryStore) GetBook(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, port.ErrBookNotFound
	}
	return &b, nil
}

// ListLibrary returns a profile's saved books, newest first.
func (s *MemoryStore) ListLibrary(_ context.Context, profileID string) ([]domain.LibraryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LibraryEntry, 0, len(s.library[profileID]))
	for i := len(s.library[profileID]) - 1; i >= 0; i-- {
		entries = append(entries, s.library[profileID][i])
	}
	return entries, nil
}

// AddToLibrary saves a book once per profile.
func (s *MemoryStore) AddToLibrary(_ context.Context, profileID, bookID string) (*domain.LibraryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return nil, port.ErrBookNotFound
	}
	for _, e := range s.library[profileID] {
		if e.Book.ID == bookID {
			return &e, nil
		}
	}
	e := domain.LibraryEntry{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Book:      b,
		AddedAt:   s.now(),
	}
	s.library[profileID] = append(s.library[profileID], e)
	return &e, nil
}

// RemoveFromLibrary deletes a saved book.
func (s *MemoryStore) RemoveFromLibrary(_ context.Context, profileID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.library[profileID]
	for i, e := range entries {
		if e.Book.ID == bookID {
			s.library[profileID] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return port.ErrEntryNotFound
}

// WriteAudit implements port.AuditWriter.
func (s *MemoryStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if details == "" {
		details = "{}"
	}
	s.audit = append(s.audit, domain.AuditLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  s.now(),
	})
	return nil
}

// ListAuditLogs returns a user's audit logs, newest first.
func (s *MemoryStore) ListAuditLogs(_ context.Context, userID string, limit int, action string) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := []domain.AuditLog{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		l := s.audit[i]
		if l.UserID != userID || (action != "" && l.Action != action) {
			continue
		}
		logs = append(logs, l)
		if limit > 0 && len(logs) == limit {
			break
		}
	}
	return logs, nil
}

// SeedBooks is the catalog used when no database is configured.
func SeedBooks() []domain.Book {
	date := func(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }
	return []domain.Book{
		{ID: "dune", Title: "Dune", Author: "Frank Herbert", Description: "Desert planet politics and prophecy.", Tier: "free", PublishedAt: date(1965, time.August)},
		{ID: "neuromancer", Title: "Neuromancer", Author: "William Gibson", Description: "A washed-up hacker takes one last job.", Tier: "basic", PublishedAt: date(1984, time.July)},
		{ID: "left-hand-of-darkness", Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Description: "An envoy on the winter world of Gethen.", Tier: "free", PublishedAt: date(1969, time.March)},
		{ID: "hyperion", Title: "Hyperion", Author: "Dan Simmons", Description: "Seven pilgrims and the Shrike.", Tier: "premium", PublishedAt: date(1989, time.May)},
		{ID: "foundation", Title: "Foundation", Author: "Isaac Asimov", Description: "Psychohistory and the fall of an empire.", Tier: "basic", PublishedAt: date(1951, time.June)},
	}
}
