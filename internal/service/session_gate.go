package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

// ErrGateStarted is returned when Start is called a second time.
var ErrGateStarted = errors.New("session gate already started")

// ProfileEnsurer is the part of the reconciler the gate depends on.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, identity domain.Identity) (*domain.Profile, error)
}

// SessionGate is the single owner of the application's session. It derives
// the authentication state from the provider's initial session and change
// events, and triggers profile reconciliation when an identity first
// becomes authenticated.
type SessionGate struct {
	provider   port.IdentityProvider
	reconciler ProfileEnsurer
	now        func() time.Time

	mu         sync.RWMutex
	state      domain.AuthState
	identity   *domain.Identity
	reconciled string // identity ID already handed to Ensure
	applied    bool   // an event has been applied; a late initial result is stale
	closed     bool
	shutdown   chan struct{}
	watchers   map[chan domain.AuthState]struct{}

	startOnce sync.Once
	sub       port.Subscription
	cancel    context.CancelFunc
	bg        context.Context
	done      chan struct{}
}

type initialResult struct {
	session *domain.Session
	err     error
}

// NewSessionGate creates a gate in the loading state. Call Start to begin.
func NewSessionGate(provider port.IdentityProvider, reconciler ProfileEnsurer) *SessionGate {
	g := &SessionGate{
		provider:   provider,
		reconciler: reconciler,
		now:        time.Now,
		shutdown:   make(chan struct{}),
		watchers:   make(map[chan domain.AuthState]struct{}),
	}
	g.state = domain.AuthState{Status: domain.AuthStatusLoading, ChangedAt: g.now()}
	return g
}

// Start subscribes to provider events and issues the initial session query.
// It returns immediately; the state leaves loading once either resolves.
func (g *SessionGate) Start(ctx context.Context) error {
	started := false
	g.startOnce.Do(func() {
		started = true

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed {
			return
		}

		loopCtx, cancel := context.WithCancel(ctx)
		g.cancel = cancel
		g.bg = context.WithoutCancel(ctx)
		g.sub = g.provider.Subscribe()
		g.done = make(chan struct{})

		initial := make(chan initialResult, 1)
		go func() {
			s, err := g.provider.CurrentSession(loopCtx)
			initial <- initialResult{session: s, err: err}
		}()
		go g.run(loopCtx, g.sub.Events(), initial)
	})
	if !started {
		return ErrGateStarted
	}
	return nil
}

// Close releases the subscription and stops event processing. In-flight
// reconciliation finishes in the background; its result is discarded.
func (g *SessionGate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.shutdown)
	for ch := range g.watchers {
		delete(g.watchers, ch)
		close(ch)
	}
	cancel, sub, done := g.cancel, g.sub, g.done
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	if done != nil {
		<-done
	}
	return err
}

// State returns the current authentication state.
func (g *SessionGate) State() domain.AuthState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Identity returns a copy of the session identity, only while authenticated.
func (g *SessionGate) Identity() (domain.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state.Status != domain.AuthStatusAuthenticated || g.identity == nil {
		return domain.Identity{}, false
	}
	return *g.identity, true
}

// Watch returns a channel that receives the current state and then every
// change. Only the latest state is buffered. The channel is closed when ctx
// is done or the gate is closed.
func (g *SessionGate) Watch(ctx context.Context) <-chan domain.AuthState {
	ch := make(chan domain.AuthState, 1)

	g.mu.Lock()
	ch <- g.state
	if g.closed {
		g.mu.Unlock()
		close(ch)
		return ch
	}
	g.watchers[ch] = struct{}{}
	g.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-g.shutdown:
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.watchers[ch]; ok {
			delete(g.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

func (g *SessionGate) run(ctx context.Context, events <-chan domain.AuthEvent, initial <-chan initialResult) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-initial:
			initial = nil
			g.applyInitial(res)
		case evt, ok := <-events:
			if !ok {
				return
			}
			g.apply(evt.Identity, string(evt.Kind))
		}
	}
}

func (g *SessionGate) applyInitial(res initialResult) {
	var identity *domain.Identity
	if res.err != nil {
		slog.Warn("initial session query failed, treating as signed out",
			"error", fmt.Errorf("%w: %w", port.ErrSessionQuery, res.err))
	} else if res.session != nil {
		id := res.session.Identity
		identity = &id
	}

	g.mu.RLock()
	stale := g.applied
	g.mu.RUnlock()
	if stale {
		slog.Debug("initial session result superseded by provider event")
		return
	}
	g.apply(identity, "INITIAL_SESSION")
}

func (g *SessionGate) apply(identity *domain.Identity, source string) {
	if ensure := g.transition(identity, source); ensure != nil {
		go g.reconcile(*ensure)
	}
}

// transition records the state derived from identity and returns the
// identity to reconcile, if any.
func (g *SessionGate) transition(identity *domain.Identity, source string) *domain.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.applied = true

	if identity != nil {
		id := *identity
		identity = &id
	}
	status := domain.StatusOf(identity)
	prev := g.state.Status

	next := domain.AuthState{Status: status, ChangedAt: g.now()}
	switch status {
	case domain.AuthStatusAuthenticated:
		next.UserID = identity.ID
		next.Email = identity.Email
	case domain.AuthStatusUnverified:
		next.Email = identity.Email
	}
	g.state = next
	g.identity = identity

	if prev != status {
		slog.Info("auth state changed", "from", prev, "to", status, "event", source)
	}
	g.publish(next)

	if status != domain.AuthStatusAuthenticated {
		g.reconciled = ""
		return nil
	}
	if g.reconciled == identity.ID {
		return nil
	}
	g.reconciled = identity.ID
	ensure := *identity
	return &ensure
}

// publish must be called with g.mu held.
func (g *SessionGate) publish(s domain.AuthState) {
	for ch := range g.watchers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (g *SessionGate) reconcile(identity domain.Identity) {
	p, err := g.reconciler.Ensure(g.bg, identity)
	if err != nil {
		slog.Error("profile reconciliation failed", "user_id", identity.ID, "error", err)
		g.mu.Lock()
		if !g.closed && g.reconciled == identity.ID {
			// Let the next provider event retry.
			g.reconciled = ""
		}
		g.mu.Unlock()
		return
	}
	slog.Info("profile reconciled", "user_id", identity.ID, "profile_id", p.ID)
}
