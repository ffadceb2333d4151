// Package auth owns the OAuth2 refresh token lifecycle for both providers.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/secrets"
)

const (
	// A token expiring within this margin is treated as already expired.
	expirySafetyMargin = 60 * time.Second

	maxRefreshAttempts  = 3
	refreshBackoffUnit  = 500 * time.Millisecond
	refreshHTTPTimeout  = 30 * time.Second
	defaultExpiresInSec = 3600
)

// ManagerConfig carries one provider's client credentials and token endpoint.
type ManagerConfig struct {
	Provider      domain.Provider
	ClientID      string
	ClientSecret  string
	EncryptionKey string
	TokenURL      string
	Scope         string

	// Rotating marks a provider that invalidates the refresh token on every
	// use and returns a new one that must be persisted.
	Rotating bool

	// HTTPClient and Clock are overridable for tests.
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Manager exclusively owns one provider's credential set for the process
// lifetime. The plaintext refresh and access tokens never leave process
// memory; only the encrypted refresh token crosses the store boundary.
type Manager struct {
	cfg   ManagerConfig
	store domain.TokenStore

	// mu serializes refreshes: at most one in-flight refresh per provider.
	// A caller arriving while a refresh is outstanding blocks on the mutex
	// and then finds a fresh cached token. Two concurrent refreshes against
	// the rotating provider would each invalidate the other's new token.
	mu           sync.Mutex
	refreshToken string
	accessToken  string
	expiry       time.Time
}

// NewManager constructs a manager by loading and decrypting the stored
// refresh token. A record that cannot be decrypted is fatal for the provider:
// the error carries *domain.DecryptionError.
func NewManager(ctx context.Context, cfg ManagerConfig, store domain.TokenStore) (*Manager, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: refreshHTTPTimeout}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	record, err := store.Load(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token for %s: %w", cfg.Provider, err)
	}

	refreshToken, err := secrets.Decrypt(record, cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token for %s: %w", cfg.Provider, err)
	}

	return &Manager{
		cfg:          cfg,
		store:        store,
		refreshToken: refreshToken,
	}, nil
}

func (m *Manager) Provider() domain.Provider {
	return m.cfg.Provider
}

// AccessToken returns a valid access token, refreshing when the cached one is
// missing or within the safety margin of its expiry.
//
// When a rotated refresh token cannot be persisted, the returned error is a
// *domain.TokenPersistenceError and the returned token is still valid for the
// current process.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Clock()
	if m.accessToken != "" && now.Add(expirySafetyMargin).Before(m.expiry) {
		log.Debug().
			Str("provider", string(m.cfg.Provider)).
			Time("expiry", m.expiry).
			Msg("Using cached access token")
		return m.accessToken, nil
	}

	return m.refreshLocked(ctx)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// refreshLocked exchanges the current refresh token for a new access token.
// Caller holds m.mu.
func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	log.Info().
		Str("provider", string(m.cfg.Provider)).
		Msg("Refreshing access token")

	var lastErr error

	for attempt := 1; attempt <= maxRefreshAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * refreshBackoffUnit
			select {
			case <-ctx.Done():
				return "", &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: ctx.Err()}
			case <-time.After(delay):
			}

			log.Warn().
				Str("provider", string(m.cfg.Provider)).
				Int("attempt", attempt).
				Msg("Retrying token refresh")
		}

		resp, err := m.requestRefresh(ctx)
		if err == nil {
			return m.applyRefreshLocked(ctx, resp)
		}

		var refreshErr *domain.TokenRefreshError
		if errors.As(err, &refreshErr) && refreshErr.Kind != domain.RefreshTransient {
			// invalid_grant and other credential rejections are terminal;
			// retrying would burn a dead refresh token.
			return "", err
		}

		lastErr = err
	}

	return "", lastErr
}

// applyRefreshLocked updates the in-memory cache and, for the rotating
// provider, persists the new refresh token before declaring success.
func (m *Manager) applyRefreshLocked(ctx context.Context, resp tokenResponse) (string, error) {
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresInSec
	}

	rotated := m.cfg.Rotating && resp.RefreshToken != "" && resp.RefreshToken != m.refreshToken

	var persistErr error
	if rotated {
		log.Info().
			Str("provider", string(m.cfg.Provider)).
			Msg("Refresh token rotation detected, persisting new token")

		record, err := secrets.Encrypt(resp.RefreshToken, m.cfg.EncryptionKey)
		if err != nil {
			persistErr = err
		} else if err := m.store.Replace(ctx, m.cfg.Provider, record); err != nil {
			persistErr = err
		}
	}

	// The provider has already invalidated the old token, so the rotated one
	// is adopted in memory even when persistence failed: this run can keep
	// working while the operator is alerted.
	if resp.RefreshToken != "" {
		m.refreshToken = resp.RefreshToken
	}
	m.accessToken = resp.AccessToken
	m.expiry = m.cfg.Clock().Add(time.Duration(expiresIn) * time.Second)

	if persistErr != nil {
		log.Error().
			Err(persistErr).
			Str("provider", string(m.cfg.Provider)).
			Msg("Rotated refresh token could not be persisted; next process start will need operator intervention")
		return m.accessToken, &domain.TokenPersistenceError{Provider: m.cfg.Provider, Err: persistErr}
	}

	log.Info().
		Str("provider", string(m.cfg.Provider)).
		Time("expiry", m.expiry).
		Bool("rotated", rotated).
		Msg("Access token refreshed")

	return m.accessToken, nil
}

func (m *Manager) requestRefresh(ctx context.Context) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", m.refreshToken)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)
	if m.cfg.Scope != "" {
		form.Set("scope", m.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return tokenResponse{}, &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return tokenResponse{}, m.classifyFailure(httpResp.StatusCode, body)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return tokenResponse{}, &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	if resp.AccessToken == "" {
		return tokenResponse{}, &domain.TokenRefreshError{Provider: m.cfg.Provider, Kind: domain.RefreshTransient, Err: fmt.Errorf("token response has no access_token")}
	}

	return resp, nil
}

func (m *Manager) classifyFailure(status int, body []byte) error {
	var errResp tokenErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch {
	case errResp.Error == "invalid_grant":
		return &domain.TokenRefreshError{
			Provider: m.cfg.Provider,
			Kind:     domain.RefreshInvalidGrant,
			Err:      fmt.Errorf("provider rejected refresh token: %s", errResp.ErrorDescription),
		}
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		// Other 4xx responses (invalid_client, invalid_request) are just as
		// unretryable as a dead grant.
		return &domain.TokenRefreshError{
			Provider: m.cfg.Provider,
			Kind:     domain.RefreshInvalidGrant,
			Err:      fmt.Errorf("token endpoint returned %d: %s", status, truncate(body, 256)),
		}
	default:
		return &domain.TokenRefreshError{
			Provider: m.cfg.Provider,
			Kind:     domain.RefreshTransient,
			Err:      fmt.Errorf("token endpoint returned %d: %s", status, truncate(body, 256)),
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
