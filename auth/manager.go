// Package auth manages the bearer credential for the payroll API.
//
// The token is obtained with an OAuth2 client-credentials exchange and is
// refreshed on elapsed wall-clock time rather than on its declared expiry:
// the remote side invalidates tokens earlier than advertised, so callers pass
// an empirical per-mode threshold to RefreshIfDue before each unit of work.
package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/teranos/paysync/errors"
)

// Token is a bearer credential. It is never persisted.
type Token struct {
	AccessToken string
	TokenType   string
	ObtainedAt  time.Time
}

// Manager owns the single token of a run and replaces it in place on refresh
type Manager struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
	now        func() time.Time

	mu          sync.RWMutex
	token       *Token
	lastRefresh time.Time
}

// NewManager creates a manager that exchanges credentials at {baseURL}/token
// using HTTP basic client authentication.
func NewManager(baseURL, clientID, clientSecret string, httpClient *http.Client, logger *zap.SugaredLogger) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     TokenURL(baseURL),
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// TokenURL derives the token endpoint from the API root
func TokenURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/token"
}

// SetClock replaces the wall clock, for tests
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Acquire performs a client-credentials exchange and installs the new token.
// Any failure is fatal for the run and is marked with errors.ErrCredential.
func (m *Manager) Acquire(ctx context.Context) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	// A fresh exchange every time; the oauth2 reuse cache would hide refreshes
	tok, err := m.cfg.Token(ctx)
	if err != nil {
		wrapped := errors.Wrapf(err, "token exchange at %s", m.cfg.TokenURL)
		wrapped = errors.WithHint(wrapped, "check api.client_id and api.client_secret")
		return nil, errors.Mark(wrapped, errors.ErrCredential)
	}
	if tok.AccessToken == "" {
		return nil, errors.Mark(errors.New("token response carried no access_token"), errors.ErrCredential)
	}

	m.mu.Lock()
	now := m.now()
	token := &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ObtainedAt:  now,
	}
	m.token = token
	m.lastRefresh = now
	m.mu.Unlock()

	m.logger.Debugw("Token acquired", "token_type", token.TokenType)
	return token, nil
}

// ShouldRefresh reports whether a token obtained elapsed ago must be replaced.
// The comparison is strict: a token exactly threshold old is still used.
func ShouldRefresh(elapsed, threshold time.Duration) bool {
	return elapsed > threshold
}

// Elapsed returns the time since the last successful exchange
func (m *Manager) Elapsed() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now().Sub(m.lastRefresh)
}

// RefreshIfDue re-acquires the token when it is older than threshold.
// Returns true when a refresh happened. A manager without a token always acquires.
func (m *Manager) RefreshIfDue(ctx context.Context, threshold time.Duration) (bool, error) {
	m.mu.RLock()
	hasToken := m.token != nil
	m.mu.RUnlock()

	if hasToken && !ShouldRefresh(m.Elapsed(), threshold) {
		return false, nil
	}

	elapsed := m.Elapsed()
	if _, err := m.Acquire(ctx); err != nil {
		return false, err
	}
	if hasToken {
		m.logger.Infow("Token refreshed", "elapsed", elapsed.Round(time.Second).String())
	}
	return true, nil
}

// Current returns the installed token, or nil before the first Acquire
func (m *Manager) Current() *Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// AccessToken returns the current access token string, empty before Acquire.
// The API client reads it on every request so refreshes take effect at once.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return ""
	}
	return m.token.AccessToken
}
