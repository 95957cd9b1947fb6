package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

// GoTrueProvider implements port.IdentityProvider against a GoTrue-compatible
// auth backend. It owns the single server-side session, persists it in a
// SessionCache and publishes every change to its subscribers.
type GoTrueProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      port.SessionCache
	claims     *ClaimsChecker
	hub        *Hub
	now        func() time.Time

	mu      sync.Mutex
	session *domain.Session
	loaded  bool

	// emitMu keeps session writes and their events in the same order.
	emitMu sync.Mutex
}

// GoTrueOption customizes a GoTrueProvider.
type GoTrueOption func(*GoTrueProvider)

// WithHTTPClient sets the HTTP client used for backend calls.
func WithHTTPClient(c *http.Client) GoTrueOption {
	return func(p *GoTrueProvider) { p.httpClient = c }
}

// WithClaimsChecker verifies cached access tokens before trusting them.
func WithClaimsChecker(c *ClaimsChecker) GoTrueOption {
	return func(p *GoTrueProvider) { p.claims = c }
}

// NewGoTrueProvider creates a provider for the backend at baseURL.
func NewGoTrueProvider(baseURL, apiKey string, cache port.SessionCache, opts ...GoTrueOption) *GoTrueProvider {
	p := &GoTrueProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		hub:        NewHub(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe implements port.IdentityProvider.
func (p *GoTrueProvider) Subscribe() port.Subscription {
	return p.hub.Subscribe()
}

// CurrentSession returns the active session, restoring it from the cache on
// first use. An expired session is refreshed before it is returned.
func (p *GoTrueProvider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	s, err := p.load(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.Expired(p.now()) {
		return s, nil
	}
	if s.RefreshToken == "" {
		p.clear(ctx, false)
		return nil, nil
	}

	refreshed, err := p.Refresh(ctx)
	if errors.Is(err, port.ErrProviderRejected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (p *GoTrueProvider) load(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		cached, err := p.cache.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("gotrue: restore session: %w", err)
		}
		if cached != nil && p.claims != nil {
			if err := p.claims.CheckSubject(cached.AccessToken, cached.Identity.ID); err != nil {
				slog.Warn("discarding cached session", "user_id", cached.Identity.ID, "error", err)
				cached = nil
				if err := p.cache.Clear(ctx); err != nil {
					slog.Warn("failed to clear session cache", "error", err)
				}
			}
		}
		p.session = cached
		p.loaded = true
		if cached != nil {
			slog.Info("session restored", "user_id", cached.Identity.ID)
		}
	}

	if p.session == nil {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

// SignIn authenticates with the password grant.
func (p *GoTrueProvider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		var be *backendError
		if errors.As(err, &be) && be.rejected() {
			if be.notConfirmed() {
				return nil, fmt.Errorf("%w: %w", port.ErrEmailNotVerified, err)
			}
			return nil, fmt.Errorf("%w: %w", port.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	s, err := resp.session(p.now())
	if err != nil {
		return nil, err
	}
	p.set(ctx, s, domain.AuthEventSignedIn)
	return s, nil
}

// SignUp registers a new identity. Backends that confirm emails immediately
// also return a session, which becomes the current one.
func (p *GoTrueProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, *domain.Session, error) {
	var raw json.RawMessage
	err := p.do(ctx, http.MethodPost, "/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}, &raw)
	if err != nil {
		return nil, nil, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("gotrue: decode signup response: %w", err)
	}
	if resp.AccessToken == "" {
		var identity domain.Identity
		if err := json.Unmarshal(raw, &identity); err != nil {
			return nil, nil, fmt.Errorf("gotrue: decode signup user: %w", err)
		}
		if identity.ID == "" {
			return nil, nil, fmt.Errorf("gotrue: signup returned no user: %w", port.ErrInvalidIdentity)
		}
		return &identity, nil, nil
	}

	s, err := resp.session(p.now())
	if err != nil {
		return nil, nil, err
	}
	p.set(ctx, s, domain.AuthEventSignedIn)
	identity := s.Identity
	return &identity, s, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (p *GoTrueProvider) SignOut(ctx context.Context) error {
	s, err := p.load(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	if err := p.do(ctx, http.MethodPost, "/logout", s.AccessToken, nil, nil); err != nil {
		slog.Warn("remote sign-out failed, clearing local session", "user_id", s.Identity.ID, "error", err)
	}
	p.clear(ctx, true)
	return nil
}

// ReloadUser re-fetches the current user, publishing USER_UPDATED.
func (p *GoTrueProvider) ReloadUser(ctx context.Context) (*domain.Identity, error) {
	s, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, port.ErrNoSession
	}

	var identity domain.Identity
	if err := p.do(ctx, http.MethodGet, "/user", s.AccessToken, nil, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("gotrue: user response has no id: %w", port.ErrInvalidIdentity)
	}

	s.Identity = identity
	p.set(ctx, s, domain.AuthEventUserUpdated)
	return &identity, nil
}

// Refresh exchanges the refresh token for a new session. A rejected refresh
// ends the session locally.
func (p *GoTrueProvider) Refresh(ctx context.Context) (*domain.Session, error) {
	s, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || s.RefreshToken == "" {
		return nil, port.ErrNoSession
	}

	var resp tokenResponse
	err = p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": s.RefreshToken,
	}, &resp)
	if err != nil {
		if errors.Is(err, port.ErrProviderRejected) {
			slog.Warn("refresh token rejected, signing out", "user_id", s.Identity.ID, "error", err)
			p.clear(ctx, true)
		}
		return nil, err
	}

	refreshed, err := resp.session(p.now())
	if err != nil {
		return nil, err
	}
	p.set(ctx, refreshed, domain.AuthEventTokenRefreshed)
	return refreshed, nil
}

// ExchangeIDToken signs in with an id token issued by an external OIDC provider.
func (p *GoTrueProvider) ExchangeIDToken(ctx context.Context, provider, idToken string) (*domain.Session, error) {
	var resp tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=id_token", "", map[string]string{
		"provider": provider,
		"id_token": idToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	s, err := resp.session(p.now())
	if err != nil {
		return nil, err
	}
	p.set(ctx, s, domain.AuthEventSignedIn)
	return s, nil
}

// DefaultRefreshInterval is used by Run when given a non-positive interval.
const DefaultRefreshInterval = 30 * time.Second

// Run refreshes the session whenever it comes within margin of expiry,
// checking every interval until ctx is done.
func (p *GoTrueProvider) Run(ctx context.Context, interval, margin time.Duration) {
	if interval <= 0 {
		slog.Warn("invalid refresh interval, using default", "interval", interval, "default", DefaultRefreshInterval)
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.dueForRefresh(margin) {
				continue
			}
			if _, err := p.Refresh(ctx); err != nil && !errors.Is(err, port.ErrProviderRejected) {
				slog.Error("session refresh failed", "error", err)
			}
		}
	}
}

func (p *GoTrueProvider) dueForRefresh(margin time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	if s == nil || s.RefreshToken == "" || s.ExpiresAt.IsZero() {
		return false
	}
	return !p.now().Add(margin).Before(s.ExpiresAt)
}

func (p *GoTrueProvider) set(ctx context.Context, s *domain.Session, kind domain.AuthEventKind) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	cp := *s
	p.mu.Lock()
	p.session = &cp
	p.loaded = true
	p.mu.Unlock()

	if err := p.cache.Save(ctx, &cp); err != nil {
		slog.Warn("failed to persist session", "user_id", cp.Identity.ID, "error", err)
	}

	identity := cp.Identity
	p.hub.Publish(domain.AuthEvent{Kind: kind, Identity: &identity})
}

func (p *GoTrueProvider) clear(ctx context.Context, notify bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.session = nil
	p.loaded = true
	p.mu.Unlock()

	if err := p.cache.Clear(ctx); err != nil {
		slog.Warn("failed to clear session cache", "error", err)
	}
	if notify {
		p.hub.Publish(domain.AuthEvent{Kind: domain.AuthEventSignedOut})
	}
}

// --- wire format ---

type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	ExpiresAt    int64            `json:"expires_at"`
	User         *domain.Identity `json:"user"`
}

func (r tokenResponse) session(now time.Time) (*domain.Session, error) {
	if r.AccessToken == "" || r.User == nil || r.User.ID == "" {
		return nil, fmt.Errorf("gotrue: incomplete token response: %w", port.ErrInvalidIdentity)
	}
	s := &domain.Session{
		Identity:     *r.User,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s, nil
}

type backendError struct {
	Status  int
	Code    string
	Message string
}

func (e *backendError) Error() string {
	return fmt.Sprintf("gotrue: request failed (%d): %s", e.Status, e.Message)
}

func (e *backendError) rejected() bool {
	return e.Status >= 400 && e.Status < 500
}

func (e *backendError) notConfirmed() bool {
	return e.Code == "email_not_confirmed" || strings.Contains(strings.ToLower(e.Message), "not confirmed")
}

func (p *GoTrueProvider) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gotrue: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gotrue: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		be := decodeBackendError(resp.StatusCode, raw)
		if be.rejected() {
			return fmt.Errorf("%w: %w", port.ErrProviderRejected, be)
		}
		return be
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gotrue: decode %s response: %w", path, err)
	}
	return nil
}

func decodeBackendError(status int, raw []byte) *backendError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)

	be := &backendError{Status: status, Code: payload.ErrorCode}
	for _, m := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
		if m != "" {
			be.Message = m
			break
		}
	}
	if be.Message == "" {
		be.Message = strings.TrimSpace(string(raw))
	}
	return be
}
