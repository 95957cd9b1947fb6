package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCClient runs the authorization-code flow with PKCE against an external
// OpenID Connect issuer and returns the verified id token.
type OIDCClient struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// NewOIDCClient discovers the issuer's endpoints and keys.
func NewOIDCClient(ctx context.Context, name, issuer, clientID, clientSecret, redirectURL string) (*OIDCClient, error) {
	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("init oidc provider %s: %w", issuer, err)
	}

	return &OIDCClient{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Name is the provider name passed to the backend's id-token grant.
func (c *OIDCClient) Name() string {
	return c.name
}

// AuthCodeURL builds the consent URL for state and the PKCE verifier.
func (c *OIDCClient) AuthCodeURL(state, verifier string) string {
	return c.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the authorization code for tokens and verifies the id token.
func (c *OIDCClient) Exchange(ctx context.Context, code, verifier string) (string, error) {
	token, err := c.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("oidc token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("oidc issuer did not return an id_token")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("oidc id_token verification: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("oidc id_token claims: %w", err)
	}

	slog.Info("oidc id token verified",
		"provider", c.name,
		"issuer", idToken.Issuer,
		"email_present", claims.Email != "",
		"email_verified", claims.EmailVerified,
	)
	return rawIDToken, nil
}

// NewState returns a random value for the state cookie.
func NewState() string {
	return oauth2.GenerateVerifier()
}
