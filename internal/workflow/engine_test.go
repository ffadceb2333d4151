package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandlers() map[Step]StepFunc {
	handlers := map[Step]StepFunc{}
	for step := StepInit; step <= StepFinalize; step++ {
		handlers[step] = func(ctx context.Context, state *State) error { return nil }
	}
	return handlers
}

func TestNewEngineRejectsIncompleteHandlerTable(t *testing.T) {
	handlers := noopHandlers()
	delete(handlers, StepInvitations)

	_, err := NewEngine(handlers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVITATIONS")
}

func TestEngineRunsAllStepsInOrder(t *testing.T) {
	var order []Step
	handlers := map[Step]StepFunc{}
	for step := StepInit; step <= StepFinalize; step++ {
		handlers[step] = func(ctx context.Context, state *State) error {
			order = append(order, step)
			return nil
		}
	}

	engine, err := NewEngine(handlers)
	require.NoError(t, err)

	state := engine.Run(context.Background(), NewState(nil, ""))
	assert.True(t, state.Success)
	assert.Equal(t, []Step{StepInit, StepAuth, StepProjects, StepInvitations, StepEmail, StepFinalize}, order)
}

func TestEngineRoutesFailureToFinalize(t *testing.T) {
	calls := map[Step]int{}
	handlers := noopHandlers()
	for step := StepInit; step <= StepFinalize; step++ {
		handlers[step] = func(ctx context.Context, state *State) error {
			calls[step]++
			if step == StepProjects {
				return errors.New("project query exploded")
			}
			return nil
		}
	}

	engine, err := NewEngine(handlers)
	require.NoError(t, err)

	state := engine.Run(context.Background(), NewState(nil, ""))

	assert.False(t, state.Success)
	assert.Equal(t, "PROJECTS", state.FailedStep)
	assert.Equal(t, "project query exploded", state.ErrorMessage)

	// Remaining steps are skipped; finalize runs exactly once.
	assert.Equal(t, 0, calls[StepInvitations])
	assert.Equal(t, 0, calls[StepEmail])
	assert.Equal(t, 1, calls[StepFinalize])
}

func TestEngineFinalizesExactlyOnceOnSuccess(t *testing.T) {
	finalizes := 0
	handlers := noopHandlers()
	handlers[StepFinalize] = func(ctx context.Context, state *State) error {
		finalizes++
		return nil
	}

	engine, err := NewEngine(handlers)
	require.NoError(t, err)

	engine.Run(context.Background(), NewState(nil, ""))
	assert.Equal(t, 1, finalizes)
}

func TestStateFirstFailureWins(t *testing.T) {
	state := NewState(nil, "")

	state.Fail(StepAuth, "first failure")
	state.Fail(StepEmail, "second failure")

	assert.False(t, state.Success)
	assert.Equal(t, "AUTH", state.FailedStep)
	assert.Equal(t, "first failure", state.ErrorMessage)
	require.Len(t, state.Notes, 1)
	assert.Contains(t, state.Notes[0], "second failure")
}

func TestTransitionTableAllFailuresRouteToFinalize(t *testing.T) {
	for step := StepInit; step < StepFinalize; step++ {
		tr, ok := transitions[step]
		require.True(t, ok, "step %s has no transition", step)
		assert.Equal(t, StepFinalize, tr.onFailure, "step %s", step)
	}
}
