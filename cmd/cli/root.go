package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/tracker"
	"github.com/developiq/northstar/internal/version"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "northstar",
		Short: "Bid reminder service for BuildingConnected projects",
		Long: `Northstar joins BuildingConnected project data with an email provider to
remind invited contractors of upcoming bid deadlines. Reminders escalate as
the deadline approaches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.GetVersion(),
	}

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewScheduleCommand())
	rootCmd.AddCommand(NewSetupCommand())
	rootCmd.AddCommand(NewStatusCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newTracker builds the email tracker: Postgres when a database is
// configured, otherwise a no-op. The returned close func is always safe to
// call.
func newTracker(ctx context.Context, cfg *config.Config) (domain.EmailTracker, func(), error) {
	if cfg.DatabaseURL == "" {
		return tracker.NoopTracker{}, func() {}, nil
	}
	pg, err := tracker.NewPostgresTracker(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect email tracker: %w", err)
	}
	return pg, pg.Close, nil
}
