package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

func TestAuthService_SignIn(t *testing.T) {
	p := newFakeProvider(nil)
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p.On("SignIn", mock.Anything, "a@x.io", "secret").Return(sessionFor(identity), nil)

	svc := NewAuthService(p, NewProfileReconciler(newFlakyStore()), nil)
	s, err := svc.SignIn(context.Background(), "  a@x.io ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.Identity.ID)
	p.AssertExpectations(t)
}

func TestAuthService_SignInValidatesInput(t *testing.T) {
	p := newFakeProvider(nil)
	svc := NewAuthService(p, NewProfileReconciler(newFlakyStore()), nil)

	_, err := svc.SignIn(context.Background(), "", "secret")
	assert.ErrorIs(t, err, port.ErrInvalidCredentials)
	_, err = svc.SignIn(context.Background(), "a@x.io", "")
	assert.ErrorIs(t, err, port.ErrInvalidCredentials)
	p.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_SignInSurfacesProviderError(t *testing.T) {
	p := newFakeProvider(nil)
	p.On("SignIn", mock.Anything, "a@x.io", "bad").Return(nil, port.ErrInvalidCredentials)

	svc := NewAuthService(p, NewProfileReconciler(newFlakyStore()), nil)
	_, err := svc.SignIn(context.Background(), "a@x.io", "bad")
	assert.ErrorIs(t, err, port.ErrInvalidCredentials)
}

func TestAuthService_SignUpAwaitingConfirmation(t *testing.T) {
	st := newFlakyStore()
	p := newFakeProvider(nil)
	pending := unverifiedIdentity("u1", "a@x.io")
	p.On("SignUp", mock.Anything, "a@x.io", "secret", mock.MatchedBy(func(m map[string]any) bool {
		return m[domain.MetadataName] == "Ann" && m[domain.MetadataLocation] == "Porto"
	})).Return(&pending, nil, nil)

	svc := NewAuthService(p, NewProfileReconciler(st), nil)
	res, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "a@x.io", Password: "secret", Name: "Ann", Location: "Porto",
	})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)
	assert.Nil(t, res.Profile)
	assert.Equal(t, int32(0), st.inserts.Load(), "no profile before verification")
}

func TestAuthService_SignUpAutoConfirmedEnsuresProfile(t *testing.T) {
	st := newFlakyStore()
	p := newFakeProvider(nil)
	identity := verifiedIdentity("u1", "a@x.io", map[string]any{domain.MetadataName: "Ann"})
	p.On("SignUp", mock.Anything, "a@x.io", "secret", mock.Anything).Return(&identity, sessionFor(identity), nil)

	svc := NewAuthService(p, NewProfileReconciler(st), nil)
	res, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@x.io", Password: "secret", Name: "Ann"})
	require.NoError(t, err)
	assert.False(t, res.ConfirmationRequired)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "Ann", res.Profile.Name)
}

func TestAuthService_SignUpSurfacesEnsureFailure(t *testing.T) {
	st := newFlakyStore()
	st.insertErr = errBoom
	p := newFakeProvider(nil)
	identity := verifiedIdentity("u1", "a@x.io", nil)
	p.On("SignUp", mock.Anything, "a@x.io", "secret", mock.Anything).Return(&identity, sessionFor(identity), nil)

	svc := NewAuthService(p, NewProfileReconciler(st), nil)
	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@x.io", Password: "secret"})
	assert.ErrorIs(t, err, port.ErrProfileCreate)
}

func TestAuthService_SignOutAndRefresh(t *testing.T) {
	p := newFakeProvider(nil)
	p.On("SignOut", mock.Anything).Return(nil)
	p.On("ReloadUser", mock.Anything).Return(nil, port.ErrNoSession).Once()

	audit := newFlakyStore()
	svc := NewAuthService(p, NewProfileReconciler(newFlakyStore()), audit)

	require.NoError(t, svc.SignOut(context.Background(), "u1"))
	require.Eventually(t, func() bool {
		logs, _ := audit.ListAuditLogs(context.Background(), "u1", 10, domain.AuditActionSignOut)
		return len(logs) == 1
	}, waitFor, tick)

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, port.ErrNoSession)

	identity := verifiedIdentity("u1", "a@x.io", nil)
	p.On("ReloadUser", mock.Anything).Return(&identity, nil)
	got, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Verified())
}
