package domain

import "time"

// Book is a catalog entry.
type Book struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Author      string    `json:"author"      db:"author"`
	Description string    `json:"description" db:"description"`
	CoverURL    string    `json:"cover_url"   db:"cover_url"`
	Tier        string    `json:"tier"        db:"tier"` // free, basic, premium
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}

// LibraryEntry records a book saved to a profile's personal library.
type LibraryEntry struct {
	ID        string    `json:"id"         db:"id"`
	ProfileID string    `json:"profile_id" db:"profile_id"`
	Book      Book      `json:"book"`
	AddedAt   time.Time `json:"added_at"   db:"added_at"`
}
