package service

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/bookverse/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	settle  = 100 * time.Millisecond
)

func unverifiedIdentity(id, email string) domain.Identity {
	return domain.Identity{ID: id, Email: email}
}

func sessionFor(identity domain.Identity) *domain.Session {
	return &domain.Session{Identity: identity, AccessToken: "at-" + identity.ID, RefreshToken: "rt-" + identity.ID}
}

func startGate(t *testing.T, p *fakeProvider, e *recordingEnsurer) *SessionGate {
	t.Helper()
	g := NewSessionGate(p, e)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { g.Close() })
	return g
}

func waitStatus(t *testing.T, g *SessionGate, want domain.AuthStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return g.State().Status == want }, waitFor, tick,
		"expected status %s, got %s", want, g.State().Status)
}

func TestSessionGate_StartsLoading(t *testing.T) {
	p := newFakeProvider(nil)
	p.release = make(chan struct{})
	e := &recordingEnsurer{}

	g := startGate(t, p, e)

	assert.Never(t, func() bool { return g.State().Status != domain.AuthStatusLoading }, settle, tick)
	_, ok := g.Identity()
	assert.False(t, ok)

	close(p.release)
	waitStatus(t, g, domain.AuthStatusUnauthenticated)
}

func TestSessionGate_InitialNoSession(t *testing.T) {
	e := &recordingEnsurer{}
	g := startGate(t, newFakeProvider(nil), e)

	waitStatus(t, g, domain.AuthStatusUnauthenticated)
	assert.Empty(t, g.State().UserID)
	assert.Equal(t, 0, e.count())
}

func TestSessionGate_InitialVerifiedSessionReconciles(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	e := &recordingEnsurer{}
	g := startGate(t, newFakeProvider(sessionFor(identity)), e)

	waitStatus(t, g, domain.AuthStatusAuthenticated)
	state := g.State()
	assert.Equal(t, "u1", state.UserID)
	assert.Equal(t, "a@x.io", state.Email)

	got, ok := g.Identity()
	require.True(t, ok)
	assert.Equal(t, "u1", got.ID)

	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"u1"}, e.snapshot())
}

func TestSessionGate_InitialUnverifiedSession(t *testing.T) {
	e := &recordingEnsurer{}
	g := startGate(t, newFakeProvider(sessionFor(unverifiedIdentity("u1", "a@x.io"))), e)

	waitStatus(t, g, domain.AuthStatusUnverified)
	assert.Empty(t, g.State().UserID)
	assert.Equal(t, "a@x.io", g.State().Email)
	_, ok := g.Identity()
	assert.False(t, ok)

	assert.Never(t, func() bool { return e.count() > 0 }, settle, tick)
}

func TestSessionGate_InitialQueryFailureIsSignedOut(t *testing.T) {
	p := newFakeProvider(sessionFor(verifiedIdentity("u1", "a@x.io", nil)))
	p.sessionErr = errBoom
	e := &recordingEnsurer{}

	g := startGate(t, p, e)

	waitStatus(t, g, domain.AuthStatusUnauthenticated)
	assert.Equal(t, 0, e.count())
}

func TestSessionGate_SignInEvent(t *testing.T) {
	p := newFakeProvider(nil)
	e := &recordingEnsurer{}
	g := startGate(t, p, e)
	waitStatus(t, g, domain.AuthStatusUnauthenticated)

	identity := verifiedIdentity("u2", "b@x.io", nil)
	p.emit(domain.AuthEventSignedIn, &identity)

	waitStatus(t, g, domain.AuthStatusAuthenticated)
	assert.Equal(t, "u2", g.State().UserID)
	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)
}

func TestSessionGate_EventSupersedesLateInitialResult(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p := newFakeProvider(nil) // the initial query will report no session
	p.release = make(chan struct{})
	e := &recordingEnsurer{}
	g := startGate(t, p, e)

	p.emit(domain.AuthEventSignedIn, &identity)
	waitStatus(t, g, domain.AuthStatusAuthenticated)

	close(p.release)
	assert.Never(t, func() bool { return g.State().Status != domain.AuthStatusAuthenticated }, settle, tick)
	assert.Equal(t, "u1", g.State().UserID)
}

func TestSessionGate_RepeatedEventsReconcileOnce(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p := newFakeProvider(sessionFor(identity))
	e := &recordingEnsurer{}
	g := startGate(t, p, e)
	waitStatus(t, g, domain.AuthStatusAuthenticated)

	p.emit(domain.AuthEventTokenRefreshed, &identity)
	p.emit(domain.AuthEventUserUpdated, &identity)
	p.emit(domain.AuthEventTokenRefreshed, &identity)

	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return e.count() > 1 }, settle, tick)
	assert.Equal(t, domain.AuthStatusAuthenticated, g.State().Status)
}

func TestSessionGate_SignOutThenSignInReconcilesAgain(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p := newFakeProvider(sessionFor(identity))
	e := &recordingEnsurer{}
	g := startGate(t, p, e)
	waitStatus(t, g, domain.AuthStatusAuthenticated)
	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)

	p.emit(domain.AuthEventSignedOut, nil)
	waitStatus(t, g, domain.AuthStatusUnauthenticated)
	assert.Empty(t, g.State().UserID)
	_, ok := g.Identity()
	assert.False(t, ok)

	p.emit(domain.AuthEventSignedIn, &identity)
	waitStatus(t, g, domain.AuthStatusAuthenticated)
	require.Eventually(t, func() bool { return e.count() == 2 }, waitFor, tick)
}

func TestSessionGate_SwitchingUsersReconcilesEach(t *testing.T) {
	a := verifiedIdentity("u1", "a@x.io", nil)
	b := verifiedIdentity("u2", "b@x.io", nil)
	p := newFakeProvider(sessionFor(a))
	e := &recordingEnsurer{}
	g := startGate(t, p, e)
	waitStatus(t, g, domain.AuthStatusAuthenticated)

	p.emit(domain.AuthEventSignedIn, &b)
	require.Eventually(t, func() bool { return g.State().UserID == "u2" }, waitFor, tick)
	require.Eventually(t, func() bool { return e.count() == 2 }, waitFor, tick)
	assert.ElementsMatch(t, []string{"u1", "u2"}, e.snapshot())
}

func TestSessionGate_VerificationCompletesReconciles(t *testing.T) {
	pending := unverifiedIdentity("u1", "a@x.io")
	p := newFakeProvider(sessionFor(pending))
	e := &recordingEnsurer{}
	g := startGate(t, p, e)
	waitStatus(t, g, domain.AuthStatusUnverified)

	confirmed := verifiedIdentity("u1", "a@x.io", nil)
	p.emit(domain.AuthEventUserUpdated, &confirmed)

	waitStatus(t, g, domain.AuthStatusAuthenticated)
	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)
}

func TestSessionGate_EnsureFailureKeepsStateAndRetries(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p := newFakeProvider(sessionFor(identity))
	e := &recordingEnsurer{err: errBoom}
	g := startGate(t, p, e)

	waitStatus(t, g, domain.AuthStatusAuthenticated)
	require.Eventually(t, func() bool { return e.count() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return g.State().Status != domain.AuthStatusAuthenticated }, settle, tick)

	e.setErr(nil)
	p.emit(domain.AuthEventTokenRefreshed, &identity)
	require.Eventually(t, func() bool { return e.count() == 2 }, waitFor, tick)
}

func TestSessionGate_CloseStopsProcessing(t *testing.T) {
	p := newFakeProvider(nil)
	e := &recordingEnsurer{}
	g := NewSessionGate(p, e)
	require.NoError(t, g.Start(context.Background()))
	waitStatus(t, g, domain.AuthStatusUnauthenticated)
	require.Equal(t, 1, p.hub.Len())

	require.NoError(t, g.Close())
	require.NoError(t, g.Close(), "close is idempotent")
	assert.Equal(t, 0, p.hub.Len())

	identity := verifiedIdentity("u1", "a@x.io", nil)
	p.emit(domain.AuthEventSignedIn, &identity)

	assert.Never(t, func() bool { return g.State().Status != domain.AuthStatusUnauthenticated }, settle, tick)
	assert.Equal(t, 0, e.count())
}

func TestSessionGate_StartTwice(t *testing.T) {
	g := startGate(t, newFakeProvider(nil), &recordingEnsurer{})
	assert.ErrorIs(t, g.Start(context.Background()), ErrGateStarted)
}

func TestSessionGate_CloseBeforeInitialResult(t *testing.T) {
	p := newFakeProvider(nil)
	p.release = make(chan struct{})
	g := NewSessionGate(p, &recordingEnsurer{})
	require.NoError(t, g.Start(context.Background()))

	require.NoError(t, g.Close())
	close(p.release)
	assert.Never(t, func() bool { return g.State().Status != domain.AuthStatusLoading }, settle, tick)
}

func TestSessionGate_CloseReleasesWatchers(t *testing.T) {
	g := NewSessionGate(newFakeProvider(nil), &recordingEnsurer{})

	before := runtime.NumGoroutine()
	chans := make([]<-chan domain.AuthState, 0, 50)
	for range 50 {
		chans = append(chans, g.Watch(context.Background()))
	}
	require.NoError(t, g.Close())

	for _, ch := range chans {
		<-ch
		_, ok := <-ch
		assert.False(t, ok)
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, waitFor, tick)
}

func TestSessionGate_Watch(t *testing.T) {
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p := newFakeProvider(nil)
	g := NewSessionGate(p, &recordingEnsurer{})
	t.Cleanup(func() { g.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := g.Watch(ctx)

	next := func() domain.AuthState {
		t.Helper()
		select {
		case s, ok := <-ch:
			require.True(t, ok)
			return s
		case <-time.After(waitFor):
			t.Fatal("no state received")
			return domain.AuthState{}
		}
	}

	assert.Equal(t, domain.AuthStatusLoading, next().Status)

	require.NoError(t, g.Start(context.Background()))
	assert.Equal(t, domain.AuthStatusUnauthenticated, next().Status)

	p.emit(domain.AuthEventSignedIn, &identity)
	s := next()
	assert.Equal(t, domain.AuthStatusAuthenticated, s.Status)
	assert.Equal(t, "u1", s.UserID)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
}
