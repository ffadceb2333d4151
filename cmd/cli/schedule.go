package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/scheduler"
	"github.com/developiq/northstar/internal/workflow"
)

func NewScheduleCommand() *cobra.Command {
	var cronSpec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the reminder workflow on a cron schedule",
		Long: `Run the reminder workflow repeatedly on a cron schedule. Each tick is a
fresh run constructed from stored credentials, so long gaps between ticks
survive token expiry and rotation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cronSpec)
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "Cron expression (default from REMINDER_CRON)")

	return cmd
}

func runSchedule(cronSpec string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cronSpec == "" {
		cronSpec = cfg.ReminderCron
	}

	emailTracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	sched := scheduler.New(workflow.NewRunner(cfg, emailTracker), cronSpec)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sched.Stop()
	return nil
}
