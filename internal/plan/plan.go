// Package plan coordinates multi-step work: proposal, confirmation, and
// sequential step execution where every step re-enters the full
// parse/policy/approval/execute pipeline for exactly one action.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goq/internal/approval"
	"goq/internal/operation"
)

// State is the lifecycle of a plan.
type State int

const (
	StateProposed State = iota
	StateConfirmed
	StateExecuting
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateConfirmed:
		return "confirmed"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StepStatus is the per-step outcome.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepCompleted
	StepSkipped // denied by the human, plan continues
	StepFailed
	StepCancelled
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepCompleted:
		return "completed"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	case StepCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Icon returns a display marker for the step status.
func (s StepStatus) Icon() string {
	switch s {
	case StepPending:
		return "○"
	case StepRunning:
		return "◐"
	case StepCompleted:
		return "●"
	case StepSkipped:
		return "⊘"
	case StepFailed:
		return "✗"
	case StepCancelled:
		return "-"
	default:
		return "?"
	}
}

// Step is one planned action template plus its outcome.
type Step struct {
	ID        int
	Title     string
	Action    *operation.Action
	Status    StepStatus
	Output    string
	StartTime time.Time
	EndTime   time.Time
}

// Duration reports how long the step ran.
func (s *Step) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// DefaultStepThreshold is the operation count above which a request is
// treated as a plan rather than a single action.
const DefaultStepThreshold = 3

// StepOutcome is what the runner reports back for one executed step.
type StepOutcome int

const (
	OutcomeCompleted StepOutcome = iota
	OutcomeDenied
	OutcomeCancelled
	OutcomeFailed
)

// Runner executes a single step through the normal single-action pipeline
// and reports how it ended. The approval scope is shared across all steps so
// an approve-all or a cancel issued mid-plan is visible to the rest.
type Runner func(ctx context.Context, step *Step, scope *approval.Scope) (StepOutcome, string, error)

// Orchestrator drives one plan from proposal to completion or cancellation.
// It is owned by the main control loop and never outlives the process.
type Orchestrator struct {
	steps        []*Step
	state        State
	currentIndex int
	scope        *approval.Scope
}

// New creates a plan in the Proposed state. The scope carries approve-all
// and cancellation for the life of this plan only.
func New(steps []*Step, scope *approval.Scope) *Orchestrator {
	if scope == nil {
		scope = approval.NewScope()
	}
	for i, s := range steps {
		s.ID = i + 1
	}
	return &Orchestrator{steps: steps, state: StateProposed, scope: scope}
}

// State reports the plan lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Scope returns the approval scope shared by every step.
func (o *Orchestrator) Scope() *approval.Scope { return o.scope }

// Steps returns the plan's steps in order.
func (o *Orchestrator) Steps() []*Step { return o.steps }

// CurrentIndex is the zero-based index of the next step to run.
func (o *Orchestrator) CurrentIndex() int { return o.currentIndex }

// Confirm moves the plan from Proposed to Confirmed. Confirming a plan in
// any other state is an error.
func (o *Orchestrator) Confirm() error {
	if o.state != StateProposed {
		return fmt.Errorf("cannot confirm a %s plan", o.state)
	}
	o.state = StateConfirmed
	return nil
}

// Cancel aborts the plan. Steps not yet started are marked cancelled; an
// already-running step is allowed to finish on its own.
func (o *Orchestrator) Cancel() {
	if o.state == StateCompleted || o.state == StateCancelled {
		return
	}
	o.scope.Cancel()
	for _, s := range o.steps {
		if s.Status == StepPending {
			s.Status = StepCancelled
		}
	}
	o.state = StateCancelled
}

// Execute runs the remaining steps in order. A denied step is skipped and
// the plan continues; a cancel decision, whether issued through the scope or
// reported by the runner, stops before the next step. Cancellation is
// checked only at step boundaries.
func (o *Orchestrator) Execute(ctx context.Context, run Runner) error {
	switch o.state {
	case StateConfirmed:
		o.state = StateExecuting
	case StateExecuting:
	default:
		return fmt.Errorf("cannot execute a %s plan", o.state)
	}

	for ; o.currentIndex < len(o.steps); o.currentIndex++ {
		if err := ctx.Err(); err != nil {
			o.Cancel()
			return err
		}
		if o.scope.Cancelled() {
			o.Cancel()
			return nil
		}

		step := o.steps[o.currentIndex]
		step.Status = StepRunning
		step.StartTime = time.Now()

		outcome, output, err := run(ctx, step, o.scope)
		step.EndTime = time.Now()
		step.Output = output
		if err != nil {
			step.Status = StepFailed
			o.Cancel()
			return fmt.Errorf("plan step %d: %w", step.ID, err)
		}

		switch outcome {
		case OutcomeCompleted:
			step.Status = StepCompleted
		case OutcomeDenied:
			step.Status = StepSkipped
		case OutcomeFailed:
			step.Status = StepFailed
		case OutcomeCancelled:
			step.Status = StepCancelled
			o.currentIndex++
			o.Cancel()
			return nil
		}
	}

	o.state = StateCompleted
	return nil
}

// Render lists the plan for display, one step per line.
func (o *Orchestrator) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan (%s, %d steps):\n", o.state, len(o.steps))
	for _, s := range o.steps {
		fmt.Fprintf(&b, "  %s %d. %s\n", s.Status.Icon(), s.ID, s.Title)
	}
	return b.String()
}
