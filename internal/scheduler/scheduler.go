// Package scheduler drives workflow runs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/workflow"
)

const runTimeout = 10 * time.Minute

// Scheduler triggers one workflow run per cron tick. Each run constructs its
// own token managers and clients; nothing but the runner is shared between
// ticks.
type Scheduler struct {
	runner *workflow.Runner
	spec   string
	cron   *cron.Cron
}

func New(runner *workflow.Runner, spec string) *Scheduler {
	return &Scheduler{
		runner: runner,
		spec:   spec,
		cron:   cron.New(),
	}
}

// Start registers the reminder job and starts the cron loop. It returns once
// the loop is running.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		state, err := s.runner.Run(runCtx, workflow.RunOptions{})
		if err != nil {
			log.Error().Err(err).Msg("Scheduled run could not be constructed")
			return
		}
		log.Info().
			Str("run_id", state.RunID).
			Bool("success", state.Success).
			Msg("Scheduled run finished")
	})
	if err != nil {
		return err
	}

	log.Info().Str("schedule", s.spec).Msg("Reminder scheduler started")
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Info().Msg("Reminder scheduler stopped")
}
