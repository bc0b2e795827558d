package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"goq/internal/approval"
	"goq/internal/plan"
	"goq/internal/session"
)

var planStepRe = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)

// parsePlanSteps recognizes a plan proposal: a line starting with "PLAN:"
// followed by numbered steps. Replies that also carry an operation block are
// not plans; the single-action pipeline handles them.
func parsePlanSteps(reply string) []string {
	if strings.Contains(reply, "<operation") {
		return nil
	}
	lines := strings.Split(reply, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "PLAN:") {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	var titles []string
	for _, line := range lines[start+1:] {
		m := planStepRe.FindStringSubmatch(line)
		if m == nil {
			if len(titles) > 0 {
				break
			}
			continue
		}
		titles = append(titles, strings.TrimSpace(m[1]))
	}
	if len(titles) < 2 {
		return nil
	}
	return titles
}

// runPlan confirms a proposed plan with the user and executes its steps
// sequentially. Each step asks the model for exactly one action and runs it
// through the normal pipeline. The plan's approval scope starts from the
// run-level scope so a --all run never prompts.
func (a *App) runPlan(ctx context.Context, titles []string) error {
	steps := make([]*plan.Step, len(titles))
	for i, t := range titles {
		steps[i] = &plan.Step{Title: t}
	}

	scope := approval.NewScope()
	if a.scope.ApproveAllActive() {
		scope.ArmApproveAll()
	}
	orch := plan.New(steps, scope)

	a.prompter.Show(orch.Render())
	ch, err := a.prompter.Choose(ctx, "execute this plan? [Y]es [N]o: ", "YN")
	if err != nil {
		return err
	}
	if ch != 'Y' {
		orch.Cancel()
		fmt.Fprintln(a.out, "plan declined")
		return a.store.Append(a.sess, session.RoleResult, denialSignal("the user declined the plan"))
	}

	if err := orch.Confirm(); err != nil {
		return err
	}
	if err := orch.Execute(ctx, a.runPlanStep); err != nil {
		return err
	}

	a.prompter.Show(orch.Render())
	if orch.State() == plan.StateCancelled {
		fmt.Fprintln(a.out, "plan cancelled")
	}
	return nil
}

// runPlanStep executes one step: it prompts the model for the step's single
// action and reports how the pipeline resolved it. A reply without an action
// or with a broken block fails the step rather than stalling the plan.
func (a *App) runPlanStep(ctx context.Context, step *plan.Step, scope *approval.Scope) (plan.StepOutcome, string, error) {
	request := fmt.Sprintf("Proceed with plan step %d: %s\nReply with exactly one operation block for this step.", step.ID, step.Title)
	if err := a.store.Append(a.sess, session.RoleUser, request); err != nil {
		return plan.OutcomeFailed, "", err
	}

	reply, err := a.model.Send(ctx, a.sess.Turns)
	if err != nil {
		return plan.OutcomeFailed, "", fmt.Errorf("model request failed: %w", err)
	}

	outcome, err := a.runTurn(ctx, reply, scope)
	if err != nil {
		return plan.OutcomeFailed, "", err
	}
	switch outcome {
	case turnExecuted:
		return plan.OutcomeCompleted, lastResult(a.sess), nil
	case turnDenied:
		return plan.OutcomeDenied, "", nil
	case turnCancelled:
		return plan.OutcomeCancelled, "", nil
	default:
		return plan.OutcomeFailed, "", nil
	}
}

func lastResult(sess *session.Session) string {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].Role == session.RoleResult {
			return sess.Turns[i].Content
		}
	}
	return ""
}
