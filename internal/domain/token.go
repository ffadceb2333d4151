package domain

import "context"

// Provider identifies one of the two OAuth2 providers the service talks to.
type Provider string

const (
	// ProviderMicrosoft is the MS Graph mail provider. Its refresh token is
	// reused indefinitely.
	ProviderMicrosoft Provider = "microsoft"
	// ProviderAutodesk is the BuildingConnected provider. Every refresh
	// invalidates the old refresh token and issues a new one.
	ProviderAutodesk Provider = "autodesk"
)

// EnvPrefix returns the prefix used for the provider's environment variables
// (MS_CLIENT_ID, AUTODESK_ENCRYPTED_REFRESH_TOKEN, ...).
func (p Provider) EnvPrefix() string {
	if p == ProviderMicrosoft {
		return "MS"
	}
	return "AUTODESK"
}

// TokenManager owns one provider's credential set for the process lifetime
// and hands out valid access tokens.
//
// AccessToken may return a usable token together with a *TokenPersistenceError
// when a rotated refresh token could not be saved: the current process can
// keep working, but the stored credentials are stale and need operator
// attention before the next start.
type TokenManager interface {
	Provider() Provider
	AccessToken(ctx context.Context) (string, error)
}

// TokenStore reads and replaces encrypted refresh token records. Replace must
// be atomic: the old record stays readable until the new one is fully
// committed.
type TokenStore interface {
	Load(ctx context.Context, provider Provider) (string, error)
	Replace(ctx context.Context, provider Provider, record string) error
}
