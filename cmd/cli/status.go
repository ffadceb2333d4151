package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/secrets"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored token status per provider",
		Long: `Display whether each provider has a stored refresh token and when it was
last rotated. Nothing is decrypted; this only inspects the token store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	tokenFile := os.Getenv("TOKEN_FILE")
	if tokenFile == "" {
		tokenFile = "tokens.json"
	}
	store := secrets.NewFileTokenStore(tokenFile)

	for _, provider := range []domain.Provider{domain.ProviderMicrosoft, domain.ProviderAutodesk} {
		exists, updatedAt := store.Info(provider)
		switch {
		case exists && !updatedAt.IsZero():
			fmt.Printf("✅ %-10s token stored, last rotated %s\n", provider, updatedAt.Format("2006-01-02 15:04:05"))
		case exists:
			fmt.Printf("✅ %-10s token available from environment\n", provider)
		default:
			fmt.Printf("❌ %-10s no stored token, run 'northstar setup --provider %s'\n", provider, provider)
		}
	}

	return nil
}
