package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/arturoeanton/bookverse/internal/adapter/auth"
	"github.com/arturoeanton/bookverse/internal/adapter/store"
	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

var errBoom = errors.New("boom")

// flakyStore wraps the memory store with failure injection.
type flakyStore struct {
	*store.MemoryStore

	getErr    error
	insertErr error
	updateErr error

	// updateMisses makes the next N UpdateProfile calls report not found.
	updateMisses atomic.Int32

	// getBarrier holds the first barrierN GetProfile calls until all arrive.
	getBarrier *sync.WaitGroup
	barrierN   int32
	gets       atomic.Int32

	inserts atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: store.NewMemoryStore()}
}

func (s *flakyStore) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, err := s.MemoryStore.GetProfile(ctx, id)
	if s.getBarrier != nil && s.gets.Add(1) <= s.barrierN {
		s.getBarrier.Done()
		s.getBarrier.Wait()
	}
	return p, err
}

func (s *flakyStore) InsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	s.inserts.Add(1)
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return s.MemoryStore.InsertProfile(ctx, p)
}

func (s *flakyStore) UpdateProfile(ctx context.Context, id string, fields domain.ProfileFields) (*domain.Profile, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if s.updateMisses.Load() > 0 {
		s.updateMisses.Add(-1)
		return nil, port.ErrProfileNotFound
	}
	return s.MemoryStore.UpdateProfile(ctx, id, fields)
}

// fakeProvider is an in-memory identity provider that publishes through a
// real Hub.
type fakeProvider struct {
	mock.Mock
	hub *auth.Hub

	mu         sync.Mutex
	session    *domain.Session
	sessionErr error
	release    chan struct{} // when set, CurrentSession waits for it
	queries    atomic.Int32
}

func newFakeProvider(session *domain.Session) *fakeProvider {
	return &fakeProvider{hub: auth.NewHub(), session: session}
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	p.queries.Add(1)
	p.mu.Lock()
	release := p.release
	p.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.sessionErr
}

func (p *fakeProvider) Subscribe() port.Subscription {
	return p.hub.Subscribe()
}

func (p *fakeProvider) emit(kind domain.AuthEventKind, identity *domain.Identity) {
	p.hub.Publish(domain.AuthEvent{Kind: kind, Identity: identity})
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	args := p.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, *domain.Session, error) {
	args := p.Called(ctx, email, password, metadata)
	var identity *domain.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*domain.Identity)
	}
	var session *domain.Session
	if v := args.Get(1); v != nil {
		session = v.(*domain.Session)
	}
	return identity, session, args.Error(2)
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	return p.Called(ctx).Error(0)
}

func (p *fakeProvider) ReloadUser(ctx context.Context) (*domain.Identity, error) {
	args := p.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

// recordingEnsurer records Ensure calls and optionally fails them.
type recordingEnsurer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *recordingEnsurer) Ensure(_ context.Context, identity domain.Identity) (*domain.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, identity.ID)
	if e.err != nil {
		return nil, e.err
	}
	return &domain.Profile{ID: identity.ID, Email: identity.Email}, nil
}

func (e *recordingEnsurer) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *recordingEnsurer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *recordingEnsurer) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}
