package app

import (
	"context"
	"fmt"
	"strings"

	"goq/internal/approval"
	"goq/internal/logging"
	"goq/internal/operation"
	"goq/internal/session"
)

// turnOutcome classifies how one model reply was handled.
type turnOutcome int

const (
	turnNoAction turnOutcome = iota
	turnExecuted
	turnDenied
	turnCancelled
	turnParseError
)

// runTurn takes one model reply through the full pipeline: parse, policy,
// approval, execute, and folds the result back into the session. The reply
// itself is always recorded first so recovery sees the same conversation the
// model saw.
func (a *App) runTurn(ctx context.Context, reply string, scope *approval.Scope) (turnOutcome, error) {
	if err := a.store.Append(a.sess, session.RoleAssistant, reply); err != nil {
		return turnNoAction, err
	}

	action, err := operation.Parse(reply)
	if err != nil {
		// A protocol violation is a correction request, never an execution.
		correction := fmt.Sprintf("error: %v\nReply again with at most one well-formed operation block.", err)
		if err := a.store.Append(a.sess, session.RoleResult, correction); err != nil {
			return turnParseError, err
		}
		return turnParseError, nil
	}
	if action == nil {
		return turnNoAction, nil
	}

	logging.Debug("action proposed", "kind", action.Kind.String(), "marker", action.Marker)

	if verdict := a.policy.Evaluate(action); !verdict.Allowed {
		signal := denialSignal(verdict.Reason)
		fmt.Fprintf(a.out, "denied: %s\n", verdict.Reason)
		if err := a.store.Append(a.sess, session.RoleResult, signal); err != nil {
			return turnDenied, err
		}
		return turnDenied, nil
	}

	outcome, err := a.approver.Resolve(ctx, action, scope)
	if err != nil {
		return turnDenied, err
	}
	switch outcome.State {
	case approval.StateDenied:
		if err := a.store.Append(a.sess, session.RoleResult, denialSignal("rejected by the user")); err != nil {
			return turnDenied, err
		}
		return turnDenied, nil
	case approval.StateCancelled:
		if err := a.store.Append(a.sess, session.RoleResult, denialSignal("cancelled by the user, the remaining plan will not run")); err != nil {
			return turnCancelled, err
		}
		return turnCancelled, nil
	}

	result := a.exec.Run(ctx, outcome.Action)
	folded := formatResult(outcome.Action, result)
	if err := a.store.Append(a.sess, session.RoleResult, folded); err != nil {
		return turnExecuted, err
	}
	return turnExecuted, nil
}

// denialSignal builds the terminal result text the model is contractually
// required to honor. It carries both recognized markers.
func denialSignal(reason string) string {
	return fmt.Sprintf("Denied: %s\nSTOP: do not retry this operation this turn.", reason)
}

// formatResult serializes an execution result for the conversation,
// correlated by the action's marker.
func formatResult(action *operation.Action, result operation.ExecutionResult) string {
	var b strings.Builder
	status := "ok"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "result %s [%s] %s", action.Marker, action.Kind, status)
	if action.Kind == operation.KindShell {
		fmt.Fprintf(&b, " (exit %d)", result.ExitCode)
	}
	b.WriteString("\n")
	if result.ImageData != nil {
		fmt.Fprintf(&b, "[image %s, %d bytes]\n", result.ImageMIME, len(result.ImageData))
	}
	if result.Output != "" {
		b.WriteString(result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
