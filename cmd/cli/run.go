package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/workflow"
)

func NewRunCommand() *cobra.Command {
	var days []int
	var projectID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one bid reminder workflow run",
		Long: `Execute one workflow run: authenticate both providers, collect projects
with upcoming bid deadlines, and send reminder emails to invited
contractors. Use --days or --project to narrow the run for testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), days, projectID)
		},
	}

	cmd.Flags().IntSliceVar(&days, "days", nil, "Day offsets to query (default 5-10)")
	cmd.Flags().StringVar(&projectID, "project", "", "Run against a single project ID")

	return cmd
}

func runOnce(ctx context.Context, days []int, projectID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	emailTracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	runner := workflow.NewRunner(cfg, emailTracker)
	state, err := runner.Run(ctx, workflow.RunOptions{Days: days, ProjectID: projectID})
	if err != nil {
		return err
	}

	fmt.Println(state.ResultMessage)
	for _, note := range state.Notes {
		fmt.Printf("  note: %s\n", note)
	}

	if !state.Success {
		return fmt.Errorf("workflow failed at step %s: %s", state.FailedStep, state.ErrorMessage)
	}
	return nil
}
