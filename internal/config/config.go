// Package config loads service configuration from the environment and an
// optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/developiq/northstar/internal/domain"
)

// ProviderCredentials holds one OAuth2 provider's client credentials and
// endpoints. The refresh token itself lives in the token store, never here.
type ProviderCredentials struct {
	ClientID      string
	ClientSecret  string
	EncryptionKey string
	TokenURL      string
	AuthURL       string
	Scope         string
}

// Config holds all service configuration.
type Config struct {
	// Provider credentials
	MSClientID      string
	MSClientSecret  string
	MSEncryptionKey string
	MSTokenURL      string
	MSAuthURL       string
	MSScope         string

	AutodeskClientID      string
	AutodeskClientSecret  string
	AutodeskEncryptionKey string
	AutodeskTokenURL      string
	AutodeskAuthURL       string
	AutodeskScope         string

	// Email delivery
	EmailProvider    string // "msgraph" or "resend"
	EmailFrom        string
	ResendAPIKey     string
	DefaultRecipient string // when set, every reminder goes here instead of the contractor

	// Infrastructure
	TokenFile    string
	DatabaseURL  string
	HTTPAddress  string
	ReminderCron string
}

// Load reads configuration from environment variables, with an optional
// northstar_config.yaml for local development.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"MSClientID":      "MS_CLIENT_ID",
		"MSClientSecret":  "MS_CLIENT_SECRET",
		"MSEncryptionKey": "MS_ENCRYPTION_KEY",
		"MSTokenURL":      "MS_TOKEN_URL",
		"MSAuthURL":       "MS_AUTH_URL",
		"MSScope":         "MS_SCOPE",

		"AutodeskClientID":      "AUTODESK_CLIENT_ID",
		"AutodeskClientSecret":  "AUTODESK_CLIENT_SECRET",
		"AutodeskEncryptionKey": "AUTODESK_ENCRYPTION_KEY",
		"AutodeskTokenURL":      "AUTODESK_TOKEN_URL",
		"AutodeskAuthURL":       "AUTODESK_AUTH_URL",
		"AutodeskScope":         "AUTODESK_SCOPE",

		"EmailProvider":    "EMAIL_PROVIDER",
		"EmailFrom":        "EMAIL_FROM",
		"ResendAPIKey":     "RESEND_API_KEY",
		"DefaultRecipient": "DEFAULT_EMAIL_RECIPIENT",

		"TokenFile":    "TOKEN_FILE",
		"DatabaseURL":  "DATABASE_URL",
		"HTTPAddress":  "HTTP_ADDRESS",
		"ReminderCron": "REMINDER_CRON",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("northstar_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.northstar")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8000")
	v.SetDefault("TokenFile", "tokens.json")
	v.SetDefault("EmailProvider", "msgraph")
	v.SetDefault("ReminderCron", "0 9 * * *")

	v.SetDefault("MSTokenURL", "https://login.microsoftonline.com/common/oauth2/v2.0/token")
	v.SetDefault("MSAuthURL", "https://login.microsoftonline.com/common/oauth2/v2.0/authorize")
	v.SetDefault("MSScope", "Mail.Read Mail.Send Mail.ReadWrite offline_access")

	v.SetDefault("AutodeskTokenURL", "https://developer.api.autodesk.com/authentication/v2/token")
	v.SetDefault("AutodeskAuthURL", "https://developer.api.autodesk.com/authentication/v2/authorize")
	v.SetDefault("AutodeskScope", "data:read data:write")
}

func validateConfig(config *Config) error {
	var missingVars []string

	if config.MSClientID == "" {
		missingVars = append(missingVars, "MS_CLIENT_ID")
	}
	if config.MSClientSecret == "" {
		missingVars = append(missingVars, "MS_CLIENT_SECRET")
	}
	if config.MSEncryptionKey == "" {
		missingVars = append(missingVars, "MS_ENCRYPTION_KEY")
	}
	if config.AutodeskClientID == "" {
		missingVars = append(missingVars, "AUTODESK_CLIENT_ID")
	}
	if config.AutodeskClientSecret == "" {
		missingVars = append(missingVars, "AUTODESK_CLIENT_SECRET")
	}
	if config.AutodeskEncryptionKey == "" {
		missingVars = append(missingVars, "AUTODESK_ENCRYPTION_KEY")
	}
	if config.EmailProvider != "msgraph" && config.EmailProvider != "resend" {
		return fmt.Errorf("EMAIL_PROVIDER must be msgraph or resend, got %q", config.EmailProvider)
	}
	if config.EmailProvider == "resend" && config.ResendAPIKey == "" {
		missingVars = append(missingVars, "RESEND_API_KEY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	return nil
}

// Provider returns the credential set for one provider.
func (c *Config) Provider(p domain.Provider) ProviderCredentials {
	if p == domain.ProviderMicrosoft {
		return ProviderCredentials{
			ClientID:      c.MSClientID,
			ClientSecret:  c.MSClientSecret,
			EncryptionKey: c.MSEncryptionKey,
			TokenURL:      c.MSTokenURL,
			AuthURL:       c.MSAuthURL,
			Scope:         c.MSScope,
		}
	}
	return ProviderCredentials{
		ClientID:      c.AutodeskClientID,
		ClientSecret:  c.AutodeskClientSecret,
		EncryptionKey: c.AutodeskEncryptionKey,
		TokenURL:      c.AutodeskTokenURL,
		AuthURL:       c.AutodeskAuthURL,
		Scope:         c.AutodeskScope,
	}
}
