package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developiq/northstar/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MS_CLIENT_ID", "ms-client")
	t.Setenv("MS_CLIENT_SECRET", "ms-secret")
	t.Setenv("MS_ENCRYPTION_KEY", "ms-key")
	t.Setenv("AUTODESK_CLIENT_ID", "adsk-client")
	t.Setenv("AUTODESK_CLIENT_SECRET", "adsk-secret")
	t.Setenv("AUTODESK_ENCRYPTION_KEY", "adsk-key")
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/northstar")
	t.Setenv("DEFAULT_EMAIL_RECIPIENT", "ops@developiq.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ms-client", cfg.MSClientID)
	assert.Equal(t, "adsk-secret", cfg.AutodeskClientSecret)
	assert.Equal(t, "postgres://localhost/northstar", cfg.DatabaseURL)
	assert.Equal(t, "ops@developiq.example", cfg.DefaultRecipient)

	// Defaults kick in for everything not set.
	assert.Equal(t, "tokens.json", cfg.TokenFile)
	assert.Equal(t, "msgraph", cfg.EmailProvider)
	assert.Contains(t, cfg.MSTokenURL, "login.microsoftonline.com")
	assert.Contains(t, cfg.AutodeskTokenURL, "developer.api.autodesk.com")
}

func TestLoadReportsMissingVariables(t *testing.T) {
	t.Setenv("MS_CLIENT_ID", "ms-client")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MS_CLIENT_SECRET")
	assert.Contains(t, err.Error(), "AUTODESK_CLIENT_ID")
}

func TestLoadRequiresResendKeyForResendProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_PROVIDER", "resend")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESEND_API_KEY")
}

func TestLoadRejectsUnknownEmailProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_PROVIDER")
}

func TestProviderCredentials(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	ms := cfg.Provider(domain.ProviderMicrosoft)
	assert.Equal(t, "ms-client", ms.ClientID)
	assert.Contains(t, ms.Scope, "Mail.Send")

	adsk := cfg.Provider(domain.ProviderAutodesk)
	assert.Equal(t, "adsk-client", adsk.ClientID)
	assert.Equal(t, "data:read data:write", adsk.Scope)
}
