package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

// ProfileReconciler keeps exactly one profile per verified identity and is
// the only writer of profile rows.
type ProfileReconciler struct {
	store port.ProfileStore
	now   func() time.Time
}

// NewProfileReconciler creates a reconciler over the given store.
func NewProfileReconciler(store port.ProfileStore) *ProfileReconciler {
	return &ProfileReconciler{store: store, now: time.Now}
}

// Get returns the profile for id, or port.ErrProfileNotFound. It never creates.
func (r *ProfileReconciler) Get(ctx context.Context, id string) (*domain.Profile, error) {
	if id == "" {
		return nil, port.ErrInvalidIdentity
	}
	p, err := r.store.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, port.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", port.ErrProfileLookup, err)
	}
	return p, nil
}

// Ensure returns the profile for identity, creating it from the identity's
// email and metadata when no row exists. Safe to call redundantly: a
// duplicate insert resolves to the row that won.
func (r *ProfileReconciler) Ensure(ctx context.Context, identity domain.Identity) (*domain.Profile, error) {
	if identity.ID == "" {
		return nil, port.ErrInvalidIdentity
	}

	p, err := r.store.GetProfile(ctx, identity.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, port.ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileLookup, err)
	}

	now := r.now()
	return r.insert(ctx, &domain.Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.MetadataString(domain.MetadataName),
		Bio:       identity.MetadataString(domain.MetadataBio),
		Location:  identity.MetadataString(domain.MetadataLocation),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Update writes the set fields of the profile for id. When no profile exists
// yet it is created from exactly those fields.
func (r *ProfileReconciler) Update(ctx context.Context, id string, fields domain.ProfileFields) (*domain.Profile, error) {
	if id == "" {
		return nil, port.ErrInvalidIdentity
	}
	if fields.Empty() {
		p, err := r.store.GetProfile(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, port.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: %w", port.ErrProfileLookup, err)
		}
	}

	p, err := r.store.UpdateProfile(ctx, id, fields)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, port.ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileUpdate, err)
	}

	now := r.now()
	seed := &domain.Profile{ID: id, CreatedAt: now, UpdatedAt: now}
	fields.Apply(seed)

	created, err := r.store.InsertProfile(ctx, seed)
	if err == nil {
		slog.Info("profile created on update", "profile_id", id)
		return created, nil
	}
	if !errors.Is(err, port.ErrProfileConflict) {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileCreate, err)
	}

	// Lost a race with Ensure; the row exists now.
	p, err = r.store.UpdateProfile(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileUpdate, err)
	}
	return p, nil
}

func (r *ProfileReconciler) insert(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	created, err := r.store.InsertProfile(ctx, p)
	if err == nil {
		slog.Info("profile created", "profile_id", p.ID)
		return created, nil
	}
	if !errors.Is(err, port.ErrProfileConflict) {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileCreate, err)
	}

	existing, err := r.store.GetProfile(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrProfileLookup, err)
	}
	slog.Debug("profile already exists", "profile_id", p.ID)
	return existing, nil
}
