// Package approval drives the human-in-the-loop decision state machine that
// sits between the security policy and the executor.
package approval

import (
	"context"
	"fmt"
	"os"
	"strings"

	"goq/internal/diff"
	"goq/internal/operation"
)

// Decision is a single human input on a pending action.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionDeny
	DecisionCancel
	DecisionShowDetails
	DecisionModify
	DecisionApproveAll
)

// State of the per-action machine. Pending may transiently visit
// ShowingDetails and Modifying; the other three are terminal.
type State int

const (
	StatePending State = iota
	StateShowingDetails
	StateModifying
	StateApproved
	StateDenied
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateShowingDetails:
		return "showing_details"
	case StateModifying:
		return "modifying"
	case StateApproved:
		return "approved"
	case StateDenied:
		return "denied"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Scope carries the approve-all override and plan-level cancellation. It is
// owned by the control loop (or the plan orchestrator while a plan runs) and
// passed by reference; it is never persisted across process restarts.
type Scope struct {
	approveAll bool
	cancelled  bool
}

// NewScope creates a fresh scope for one plan or session run.
func NewScope() *Scope { return &Scope{} }

// ArmApproveAll suppresses further prompts for the remainder of this scope.
func (s *Scope) ArmApproveAll() { s.approveAll = true }

// ApproveAllActive reports whether prompts are currently suppressed.
func (s *Scope) ApproveAllActive() bool { return s.approveAll }

// Cancel marks the whole in-flight plan as cancelled.
func (s *Scope) Cancel() { s.cancelled = true }

// Cancelled reports whether a plan-level cancel was issued.
func (s *Scope) Cancelled() bool { return s.cancelled }

// Prompter collects single-character decisions from the human. Implementations
// must block until input is available or ctx is done.
type Prompter interface {
	// Choose displays prompt and returns one of the characters in choices
	// (case-insensitive; the returned byte is upper-cased).
	Choose(ctx context.Context, prompt, choices string) (byte, error)
	// Input reads a full line, used when the user modifies an action.
	Input(ctx context.Context, prompt string) (string, error)
	// Show displays informational text (diff previews, action details).
	Show(text string)
}

// Outcome is the terminal result of resolving one pending action.
type Outcome struct {
	State  State             // StateApproved, StateDenied or StateCancelled
	Action *operation.Action // possibly replaced via Modify
}

// Controller runs the approval state machine for one action at a time.
type Controller struct {
	prompter Prompter

	// Validate re-checks a modified action against the security policy
	// before it can replace the pending one. Nil means no re-check.
	Validate func(*operation.Action) (bool, string)
}

// NewController creates a controller that prompts through p.
func NewController(p Prompter) *Controller {
	return &Controller{prompter: p}
}

const choiceSet = "ADCSMY"

// Resolve drives one pending action to a terminal state. For write actions
// the diff against on-disk content is materialized and rendered before the
// first prompt. When scope has approve-all armed, Pending auto-resolves to
// Approved without prompting; a previously issued Cancel resolves to
// Cancelled before anything else happens.
func (c *Controller) Resolve(ctx context.Context, action *operation.Action, scope *Scope) (Outcome, error) {
	if scope.Cancelled() {
		return Outcome{State: StateCancelled, Action: action}, nil
	}

	preview := c.materializeDiff(action)

	if scope.ApproveAllActive() {
		if preview != nil {
			c.prompter.Show(preview.Render())
		}
		return Outcome{State: StateApproved, Action: action}, nil
	}

	if preview != nil {
		c.prompter.Show(preview.Render())
	}

	state := StatePending
	for {
		switch state {
		case StatePending:
			prompt := fmt.Sprintf("%s\n[A]pprove [D]eny [C]ancel [S]how details [M]odify [Y] approve all: ", action.Describe())
			ch, err := c.prompter.Choose(ctx, prompt, choiceSet)
			if err != nil {
				return Outcome{State: StateDenied, Action: action}, err
			}
			switch decisionFor(ch) {
			case DecisionApprove:
				return Outcome{State: StateApproved, Action: action}, nil
			case DecisionDeny:
				return Outcome{State: StateDenied, Action: action}, nil
			case DecisionCancel:
				scope.Cancel()
				return Outcome{State: StateCancelled, Action: action}, nil
			case DecisionApproveAll:
				scope.ArmApproveAll()
				return Outcome{State: StateApproved, Action: action}, nil
			case DecisionShowDetails:
				state = StateShowingDetails
			case DecisionModify:
				state = StateModifying
			}

		case StateShowingDetails:
			c.showDetails(action, preview)
			state = StatePending

		case StateModifying:
			replacement, err := c.modify(ctx, action)
			if err != nil {
				return Outcome{State: StateDenied, Action: action}, err
			}
			if replacement != nil {
				action = replacement
				preview = c.materializeDiff(action)
			}
			state = StatePending
		}
	}
}

func decisionFor(ch byte) Decision {
	switch ch {
	case 'A':
		return DecisionApprove
	case 'D':
		return DecisionDeny
	case 'C':
		return DecisionCancel
	case 'S':
		return DecisionShowDetails
	case 'M':
		return DecisionModify
	case 'Y':
		return DecisionApproveAll
	default:
		return DecisionDeny
	}
}

// materializeDiff builds the preview for write actions, using an empty
// baseline when the file does not exist yet.
func (c *Controller) materializeDiff(action *operation.Action) *diff.Preview {
	if action.Kind != operation.KindWrite {
		return nil
	}
	old, err := os.ReadFile(action.Path)
	isNew := err != nil
	return diff.Compute(action.Path, string(old), action.Content, isNew)
}

func (c *Controller) showDetails(action *operation.Action, preview *diff.Preview) {
	var b strings.Builder
	fmt.Fprintf(&b, "operation: %s\nmarker: %s\n", action.Kind, action.Marker)
	switch action.Kind {
	case operation.KindShell:
		fmt.Fprintf(&b, "command:\n%s\n", action.Command)
	case operation.KindRead:
		fmt.Fprintf(&b, "path: %s\nlines: %d-%d\n", action.Path, action.FromLine, action.ToLine)
	case operation.KindWrite:
		fmt.Fprintf(&b, "path: %s\nsize: %d bytes\n", action.Path, len(action.Content))
	case operation.KindFetch:
		fmt.Fprintf(&b, "url: %s\n", action.URL)
	case operation.KindToolCall:
		fmt.Fprintf(&b, "server: %s\ntool: %s\narguments: %v\n", action.Server, action.Tool, action.Arguments)
	}
	c.prompter.Show(b.String())
	if preview != nil {
		c.prompter.Show(preview.Render())
	}
}

// modify lets the user replace the pending action's payload. Only shell
// commands and fetch URLs are editable on a single line; other kinds keep
// the original action. A replacement that fails policy re-validation is
// discarded with an explanation.
func (c *Controller) modify(ctx context.Context, action *operation.Action) (*operation.Action, error) {
	switch action.Kind {
	case operation.KindShell:
		line, err := c.prompter.Input(ctx, "replacement command: ")
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, nil
		}
		replacement := *action
		replacement.Command = line
		return c.revalidate(&replacement)
	case operation.KindFetch:
		line, err := c.prompter.Input(ctx, "replacement URL: ")
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, nil
		}
		replacement := *action
		replacement.URL = line
		return c.revalidate(&replacement)
	default:
		c.prompter.Show("only shell and fetch operations can be modified inline")
		return nil, nil
	}
}

func (c *Controller) revalidate(replacement *operation.Action) (*operation.Action, error) {
	if c.Validate == nil {
		return replacement, nil
	}
	if ok, reason := c.Validate(replacement); !ok {
		c.prompter.Show("replacement rejected by policy: " + reason)
		return nil, nil
	}
	return replacement, nil
}
