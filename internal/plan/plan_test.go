package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goq/internal/approval"
)

func makeSteps(n int) []*Step {
	steps := make([]*Step, n)
	for i := range steps {
		steps[i] = &Step{Title: fmt.Sprintf("step %d", i+1)}
	}
	return steps
}

func TestConfirmTransitions(t *testing.T) {
	o := New(makeSteps(2), nil)
	assert.Equal(t, StateProposed, o.State())

	require.NoError(t, o.Confirm())
	assert.Equal(t, StateConfirmed, o.State())

	assert.Error(t, o.Confirm())
}

func TestExecuteRequiresConfirmation(t *testing.T) {
	o := New(makeSteps(1), nil)
	err := o.Execute(context.Background(), func(context.Context, *Step, *approval.Scope) (StepOutcome, string, error) {
		return OutcomeCompleted, "", nil
	})
	assert.Error(t, err)
}

func TestExecuteRunsAllStepsInOrder(t *testing.T) {
	o := New(makeSteps(3), nil)
	require.NoError(t, o.Confirm())

	var ran []int
	err := o.Execute(context.Background(), func(_ context.Context, s *Step, _ *approval.Scope) (StepOutcome, string, error) {
		ran = append(ran, s.ID)
		return OutcomeCompleted, "done", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, ran)
	assert.Equal(t, StateCompleted, o.State())
	for _, s := range o.Steps() {
		assert.Equal(t, StepCompleted, s.Status)
		assert.Equal(t, "done", s.Output)
	}
}

func TestDeniedStepIsSkippedAndPlanContinues(t *testing.T) {
	o := New(makeSteps(3), nil)
	require.NoError(t, o.Confirm())

	var ran []int
	err := o.Execute(context.Background(), func(_ context.Context, s *Step, _ *approval.Scope) (StepOutcome, string, error) {
		ran = append(ran, s.ID)
		if s.ID == 2 {
			return OutcomeDenied, "", nil
		}
		return OutcomeCompleted, "", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, ran)
	assert.Equal(t, StateCompleted, o.State())
	assert.Equal(t, StepCompleted, o.Steps()[0].Status)
	assert.Equal(t, StepSkipped, o.Steps()[1].Status)
	assert.Equal(t, StepCompleted, o.Steps()[2].Status)
}

func TestApproveAllAtStepIAutoApprovesRest(t *testing.T) {
	scope := approval.NewScope()
	o := New(makeSteps(5), scope)
	require.NoError(t, o.Confirm())

	// Simulated pipeline: a prompt is "shown" only when approve-all is not
	// armed; the human picks approve-all at step 2.
	var prompted []int
	err := o.Execute(context.Background(), func(_ context.Context, s *Step, sc *approval.Scope) (StepOutcome, string, error) {
		if !sc.ApproveAllActive() {
			prompted = append(prompted, s.ID)
		}
		if s.ID == 2 {
			sc.ArmApproveAll()
		}
		return OutcomeCompleted, "", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, prompted)
	assert.Equal(t, StateCompleted, o.State())
}

func TestCancelAtStepJStopsLaterSteps(t *testing.T) {
	scope := approval.NewScope()
	o := New(makeSteps(5), scope)
	require.NoError(t, o.Confirm())

	var ran []int
	err := o.Execute(context.Background(), func(_ context.Context, s *Step, _ *approval.Scope) (StepOutcome, string, error) {
		ran = append(ran, s.ID)
		if s.ID == 3 {
			return OutcomeCancelled, "", nil
		}
		return OutcomeCompleted, "", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, ran)
	assert.Equal(t, StateCancelled, o.State())
	assert.Equal(t, StepCancelled, o.Steps()[2].Status)
	assert.Equal(t, StepCancelled, o.Steps()[3].Status)
	assert.Equal(t, StepCancelled, o.Steps()[4].Status)
	assert.True(t, scope.Cancelled())
}

func TestScopeCancelledBeforeStepBoundarySkipsRemainder(t *testing.T) {
	scope := approval.NewScope()
	o := New(makeSteps(3), scope)
	require.NoError(t, o.Confirm())

	var ran []int
	err := o.Execute(context.Background(), func(_ context.Context, s *Step, sc *approval.Scope) (StepOutcome, string, error) {
		ran = append(ran, s.ID)
		if s.ID == 1 {
			// A cancel issued mid-step takes effect at the next boundary.
			sc.Cancel()
		}
		return OutcomeCompleted, "", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, ran)
	assert.Equal(t, StateCancelled, o.State())
	assert.Equal(t, StepCompleted, o.Steps()[0].Status)
	assert.Equal(t, StepCancelled, o.Steps()[1].Status)
}

func TestRunnerErrorAbortsPlan(t *testing.T) {
	o := New(makeSteps(2), nil)
	require.NoError(t, o.Confirm())

	err := o.Execute(context.Background(), func(context.Context, *Step, *approval.Scope) (StepOutcome, string, error) {
		return OutcomeFailed, "", fmt.Errorf("model unreachable")
	})
	require.Error(t, err)
	assert.Equal(t, StateCancelled, o.State())
	assert.Equal(t, StepFailed, o.Steps()[0].Status)
}

func TestCancelBeforeExecute(t *testing.T) {
	o := New(makeSteps(2), nil)
	o.Cancel()
	assert.Equal(t, StateCancelled, o.State())
	for _, s := range o.Steps() {
		assert.Equal(t, StepCancelled, s.Status)
	}

	err := o.Execute(context.Background(), func(context.Context, *Step, *approval.Scope) (StepOutcome, string, error) {
		t.Fatal("no step should run after cancel")
		return OutcomeCompleted, "", nil
	})
	assert.Error(t, err)
}

func TestRenderListsSteps(t *testing.T) {
	o := New(makeSteps(2), nil)
	out := o.Render()
	assert.Contains(t, out, "step 1")
	assert.Contains(t, out, "step 2")
	assert.Contains(t, out, "proposed")
}
