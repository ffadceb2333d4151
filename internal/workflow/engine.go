package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Step is one named stage of the run. The set is closed; the engine refuses
// to run with an incomplete transition table.
type Step int

const (
	StepInit Step = iota
	StepAuth
	StepProjects
	StepInvitations
	StepEmail
	StepFinalize
)

func (s Step) String() string {
	switch s {
	case StepInit:
		return "INIT"
	case StepAuth:
		return "AUTH"
	case StepProjects:
		return "PROJECTS"
	case StepInvitations:
		return "INVITATIONS"
	case StepEmail:
		return "EMAIL"
	case StepFinalize:
		return "FINALIZE"
	default:
		return fmt.Sprintf("STEP(%d)", int(s))
	}
}

// transition names where a step routes on success and on failure. Every step
// except the terminal one fails into StepFinalize so that exactly one
// finalization happens per run.
type transition struct {
	onSuccess Step
	onFailure Step
}

var transitions = map[Step]transition{
	StepInit:        {onSuccess: StepAuth, onFailure: StepFinalize},
	StepAuth:        {onSuccess: StepProjects, onFailure: StepFinalize},
	StepProjects:    {onSuccess: StepInvitations, onFailure: StepFinalize},
	StepInvitations: {onSuccess: StepEmail, onFailure: StepFinalize},
	StepEmail:       {onSuccess: StepFinalize, onFailure: StepFinalize},
}

// StepFunc runs one step against the shared state. A returned error is a
// step-level failure and routes the run to finalization; per-item failures
// are recorded into the state and return nil.
type StepFunc func(ctx context.Context, state *State) error

// Engine drives the steps of one run through the transition table.
type Engine struct {
	handlers map[Step]StepFunc
}

// NewEngine wires the step handlers. It fails if any non-terminal step is
// missing a handler or a transition, so an incomplete graph cannot run.
func NewEngine(handlers map[Step]StepFunc) (*Engine, error) {
	for step := StepInit; step <= StepFinalize; step++ {
		if _, ok := handlers[step]; !ok {
			return nil, fmt.Errorf("no handler registered for step %s", step)
		}
		if step == StepFinalize {
			continue
		}
		if _, ok := transitions[step]; !ok {
			return nil, fmt.Errorf("no transition registered for step %s", step)
		}
	}
	return &Engine{handlers: handlers}, nil
}

// Run executes one workflow run. The terminal step always runs exactly once,
// including when an earlier step fails.
func (e *Engine) Run(ctx context.Context, state *State) *State {
	current := StepInit
	for {
		logger := log.With().
			Str("run_id", state.RunID).
			Str("step", current.String()).
			Logger()
		logger.Info().Msg("Executing workflow step")

		err := e.handlers[current](ctx, state)

		if current == StepFinalize {
			return state
		}

		next := transitions[current].onSuccess
		if err != nil {
			state.Fail(current, err.Error())
			next = transitions[current].onFailure
			logger.Error().Err(err).Str("next_step", next.String()).Msg("Workflow step failed")
		}
		current = next
	}
}
