package domain

import "time"

// Profile is the application-owned account record, keyed by the identity ID.
type Profile struct {
	ID        string    `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Email     string    `json:"email"      db:"email"`
	Location  string    `json:"location"   db:"location"`
	Website   string    `json:"website"    db:"website"`
	Bio       string    `json:"bio"        db:"bio"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileFields is a partial update of the mutable profile fields.
// A nil pointer leaves the field untouched.
type ProfileFields struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Location *string `json:"location,omitempty"`
	Website  *string `json:"website,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// Empty reports whether no field is set.
func (f ProfileFields) Empty() bool {
	return f.Name == nil && f.Email == nil && f.Location == nil && f.Website == nil && f.Bio == nil
}

// Apply copies the set fields onto p.
func (f ProfileFields) Apply(p *Profile) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Email != nil {
		p.Email = *f.Email
	}
	if f.Location != nil {
		p.Location = *f.Location
	}
	if f.Website != nil {
		p.Website = *f.Website
	}
	if f.Bio != nil {
		p.Bio = *f.Bio
	}
}
