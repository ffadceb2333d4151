package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/auth"
	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/secrets"
)

func NewSetupCommand() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize a provider and store its refresh token",
		Long: `Walk through a provider's browser consent flow, then encrypt and store
the granted refresh token. Run once per provider before the first
scheduled run, and again whenever a token is revoked or expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, providerName)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Provider to authorize: microsoft or autodesk")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func runSetup(cmd *cobra.Command, providerName string) error {
	var provider domain.Provider
	switch providerName {
	case "microsoft":
		provider = domain.ProviderMicrosoft
	case "autodesk":
		provider = domain.ProviderAutodesk
	default:
		return fmt.Errorf("unknown provider %q, expected microsoft or autodesk", providerName)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	creds := cfg.Provider(provider)

	refreshToken, err := auth.RunConsentFlow(cmd.Context(), auth.ConsentConfig{
		Provider:     provider,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AuthURL:      creds.AuthURL,
		TokenURL:     creds.TokenURL,
		Scopes:       strings.Fields(creds.Scope),
	})
	if err != nil {
		return err
	}

	record, err := secrets.Encrypt(refreshToken, creds.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	store := secrets.NewFileTokenStore(cfg.TokenFile)
	if err := store.Replace(cmd.Context(), provider, record); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	fmt.Printf("\n✅ %s refresh token stored in %s\n", provider, cfg.TokenFile)
	fmt.Printf("\nFor deployments without the token file, set:\n\n  %s_ENCRYPTED_REFRESH_TOKEN=%s\n\n", provider.EnvPrefix(), record)

	return nil
}
