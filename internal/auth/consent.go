package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/developiq/northstar/internal/domain"
)

// ConsentConfig describes one provider's interactive authorization-code flow.
type ConsentConfig struct {
	Provider     domain.Provider
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// CallbackPort is the local port the provider redirects back to.
	CallbackPort int
}

const consentTimeout = 5 * time.Minute

// RunConsentFlow walks a human through the provider's consent screen and
// returns the granted refresh token. It prints the authorization URL, runs a
// local callback server to capture the code, and exchanges it.
//
// This is the only path that produces a refresh token from scratch; scheduled
// runs always start from the encrypted stored token.
func RunConsentFlow(ctx context.Context, cfg ConsentConfig) (string, error) {
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = 3333
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  fmt.Sprintf("http://localhost:%d/callback", cfg.CallbackPort),
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization state mismatch")
			return
		}

		if errParam := query.Get("error"); errParam != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			errCh <- fmt.Errorf("provider returned error: %s", errParam)
			return
		}

		code := query.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- fmt.Errorf("callback carried no authorization code")
			return
		}

		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		codeCh <- code
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", cfg.CallbackPort))
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{Handler: mux}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()
	defer server.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)

	log.Info().
		Str("provider", string(cfg.Provider)).
		Msg("Waiting for authorization in the browser")
	fmt.Printf("\nOpen this URL in your browser to authorize %s:\n\n  %s\n\n", cfg.Provider, authURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return "", err
	case <-time.After(consentTimeout):
		return "", fmt.Errorf("timed out waiting for authorization after %s", consentTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if token.RefreshToken == "" {
		return "", fmt.Errorf("provider returned no refresh token; check offline access scope")
	}

	log.Info().
		Str("provider", string(cfg.Provider)).
		Msg("Authorization complete, refresh token granted")

	return token.RefreshToken, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
