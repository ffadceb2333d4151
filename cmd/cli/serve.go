package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/secrets"
	"github.com/developiq/northstar/internal/server"
	"github.com/developiq/northstar/internal/workflow"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server exposing health checks and the workflow trigger
endpoint. An external scheduler can POST /run-bid-reminder to run the
reminder workflow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	emailTracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	// The stats endpoints only exist when the tracker is backed by Postgres.
	trackerStats, _ := emailTracker.(server.TrackerStats)

	app := server.NewHTTPServer(ctx, server.HTTPServerDependencies{
		Config:  cfg,
		Runner:  workflow.NewRunner(cfg, emailTracker),
		Store:   secrets.NewFileTokenStore(cfg.TokenFile),
		Tracker: trackerStats,
	})

	log.Info().Str("address", cfg.HTTPAddress).Msg("Starting HTTP server")

	if err := app.Listen(cfg.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}
