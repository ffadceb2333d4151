package domain

import (
	"errors"
	"fmt"
)

// ErrNoStoredToken is returned by a TokenStore when neither the store file
// nor the environment holds an encrypted refresh token for a provider.
var ErrNoStoredToken = errors.New("no stored refresh token")

// DecryptionError reports a secret that could not be decrypted: corrupt
// record, tampering, or the wrong key. Constructing a token manager on top
// of an undecryptable secret is fatal for that provider.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// RefreshErrorKind classifies a failed token refresh.
type RefreshErrorKind string

const (
	// RefreshInvalidGrant means the refresh token itself was rejected:
	// expired, revoked, or rotated out from under this process. Terminal
	// for the run, never retried.
	RefreshInvalidGrant RefreshErrorKind = "invalid_grant"
	// RefreshTransient covers network failures and 5xx responses. Retried
	// with bounded backoff before becoming terminal.
	RefreshTransient RefreshErrorKind = "transient"
)

// TokenRefreshError reports a refresh that failed after classification and,
// for transient failures, after retries were exhausted.
type TokenRefreshError struct {
	Provider Provider
	Kind     RefreshErrorKind
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// TokenPersistenceError reports a rotating-provider refresh that succeeded
// at the token endpoint but whose new refresh token could not be persisted.
// The in-memory process can keep operating this run; the next process start
// will fail unless an operator intervenes, so this must stay distinguishable
// from an auth failure.
type TokenPersistenceError struct {
	Provider Provider
	Err      error
}

func (e *TokenPersistenceError) Error() string {
	return fmt.Sprintf("refreshed %s token but failed to persist rotated refresh token: %v", e.Provider, e.Err)
}

func (e *TokenPersistenceError) Unwrap() error { return e.Err }

// DataFetchError records a per-item data retrieval failure. Non-fatal to the
// run; the owning step records it and continues with the remaining items.
type DataFetchError struct {
	ProjectID string
	Err       error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch failed for project %s: %v", e.ProjectID, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// EmailSendError records a per-recipient send failure. Non-fatal to the run.
type EmailSendError struct {
	Recipient string
	Err       error
}

func (e *EmailSendError) Error() string {
	return fmt.Sprintf("email send failed for %s: %v", e.Recipient, e.Err)
}

func (e *EmailSendError) Unwrap() error { return e.Err }
