package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

const uniqueViolation = "23505"

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- Profiles ---

const profileColumns = `id, name, email, location, website, bio, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Location, &p.Website, &p.Bio,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile by ID.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// InsertProfile creates a profile row. A duplicate ID maps to port.ErrProfileConflict.
func (s *PostgresStore) InsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	query := `INSERT INTO profiles (id, name, email, location, website, bio, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING ` + profileColumns

	created, err := scanProfile(s.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Email, p.Location, p.Website, p.Bio, p.CreatedAt, p.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, port.ErrProfileConflict
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

// UpdateProfile sets only the provided fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, fields domain.ProfileFields) (*domain.Profile, error) {
	if fields.Empty() {
		return s.GetProfile(ctx, id)
	}

	var sets []string
	args := []interface{}{}
	argIdx := 1

	add := func(column string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, *v)
		argIdx++
	}
	add("name", fields.Name)
	add("email", fields.Email)
	add("location", fields.Location)
	add("website", fields.Website)
	add("bio", fields.Bio)

	query := fmt.Sprintf(`UPDATE profiles SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argIdx, profileColumns)
	args = append(args, id)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// --- Books ---

const bookColumns = `b.id, b.title, b.author, b.description, b.cover_url, b.tier, b.published_at`

func scanBook(row interface{ Scan(...any) error }, extra ...any) (*domain.Book, error) {
	var b domain.Book
	dest := append([]any{
		&b.ID, &b.Title, &b.Author, &b.Description, &b.CoverURL, &b.Tier, &b.PublishedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &b, nil
}

// SearchBooks matches title or author using ILIKE. An empty query lists the catalog.
func (s *PostgresStore) SearchBooks(ctx context.Context, query string, limit int) ([]domain.Book, error) {
	sqlQuery := `SELECT ` + bookColumns + ` FROM books b`
	args := []interface{}{}
	argIdx := 1

	if query != "" {
		sqlQuery += fmt.Sprintf(" WHERE b.title ILIKE $%d OR b.author ILIKE $%d", argIdx, argIdx)
		args = append(args, "%"+query+"%")
		argIdx++
	}

	sqlQuery += " ORDER BY b.title"

	if limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()

	books := []domain.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// GetBook returns a book by ID.
func (s *PostgresStore) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books b WHERE b.id = $1`

	b, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// --- Library ---

// ListLibrary returns a profile's saved books, newest first.
func (s *PostgresStore) ListLibrary(ctx context.Context, profileID string) ([]domain.LibraryEntry, error) {
	query := `SELECT ` + bookColumns + `, e.id, e.profile_id, e.added_at
	          FROM library_entries e
	          JOIN books b ON b.id = e.book_id
	          WHERE e.profile_id = $1
	          ORDER BY e.added_at DESC`

	rows, err := s.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	defer rows.Close()

	entries := []domain.LibraryEntry{}
	for rows.Next() {
		var e domain.LibraryEntry
		b, err := scanBook(rows, &e.ID, &e.ProfileID, &e.AddedAt)
		if err != nil {
			return nil, fmt.Errorf("scan library entry: %w", err)
		}
		e.Book = *b
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddToLibrary saves a book for a profile. Adding the same book twice returns
// the existing entry.
func (s *PostgresStore) AddToLibrary(ctx context.Context, profileID, bookID string) (*domain.LibraryEntry, error) {
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO library_entries (profile_id, book_id)
	          VALUES ($1, $2)
	          ON CONFLICT (profile_id, book_id) DO UPDATE SET profile_id = library_entries.profile_id
	          RETURNING id, profile_id, added_at`

	e := domain.LibraryEntry{Book: *book}
	if err := s.db.QueryRowContext(ctx, query, profileID, bookID).Scan(&e.ID, &e.ProfileID, &e.AddedAt); err != nil {
		return nil, fmt.Errorf("add to library: %w", err)
	}
	return &e, nil
}

// RemoveFromLibrary deletes a saved book.
func (s *PostgresStore) RemoveFromLibrary(ctx context.Context, profileID, bookID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM library_entries WHERE profile_id = $1 AND book_id = $2`, profileID, bookID)
	if err != nil {
		return fmt.Errorf("remove from library: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return port.ErrEntryNotFound
	}
	return nil
}

// --- Audit Logs ---

// WriteAudit implements port.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	if details == "" {
		details = "{}"
	}
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns a user's recent audit logs, optionally filtered by action.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, userID string, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details::text, ip, user_agent, created_at
	          FROM audit_logs WHERE user_id = $1`
	args := []interface{}{userID}
	argIdx := 2

	if action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
