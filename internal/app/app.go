// Package app wires the parser, policy, approval machine, executor, session
// store and MCP manager into the single-threaded control loop. One action is
// parsed, policed, approved and executed to completion before the next model
// turn is requested.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"goq/internal/approval"
	"goq/internal/config"
	"goq/internal/executor"
	"goq/internal/logging"
	"goq/internal/mcp"
	"goq/internal/operation"
	"goq/internal/policy"
	"goq/internal/session"
)

// ModelClient is the narrow surface the loop needs from the model backend.
// The conversation so far goes in, the model's full reply text comes out.
type ModelClient interface {
	Send(ctx context.Context, turns []session.Turn) (string, error)
}

// Options are the CLI-level switches that shape one run.
type Options struct {
	Recover         bool // offer to restore the previous session first
	ApproveAll      bool // pre-arm approve-all for the whole run
	ExitAfterAnswer bool // answer the initial question, then exit
	InitialQuestion string
}

// systemPrompt teaches the model the action grammar. It is the first turn
// of every session.
const systemPrompt = `You are a command-line assistant. To act, include exactly one
operation block in your reply:

  <operation type="shell" marker="ID">command</operation>
  <operation type="read" marker="ID" from="N" to="M">path</operation>
  <operation type="write" marker="ID" path="PATH">file content</operation>
  <operation type="fetch" marker="ID">https://url</operation>
  <operation type="tool" marker="ID" server="NAME" tool="NAME">{"json":"args"}</operation>

At most one block per reply. Results come back labelled with your marker.
A result containing "Denied" or a STOP: line is terminal for that request.
For multi-step work, propose a plan first: a line "PLAN: title" followed by
numbered steps, then wait for confirmation.`

// maxActionRounds caps model/action exchanges per user request so a
// misbehaving model cannot loop forever.
const maxActionRounds = 20

// App owns the control loop state.
type App struct {
	cfg      *config.Config
	store    *session.Store
	sess     *session.Session
	policy   *policy.Policy
	approver *approval.Controller
	exec     *executor.Executor
	mcpMgr   *mcp.Manager
	model    ModelClient
	prompter approval.Prompter
	out      io.Writer

	// scope carries approve-all for the whole run; plans derive their own
	// scope from it.
	scope *approval.Scope

	// registryErrs are the malformed MCP registry entries found at startup,
	// kept for the /mcp-fix guidance.
	registryErrs []*config.EntryError

	opts Options
}

// New assembles the application. configDir holds the session files and MCP
// registry; workDir is the user's project root that every relative path and
// shell command resolves against.
func New(cfg *config.Config, configDir, workDir string, model ModelClient, prompter approval.Prompter, out io.Writer) (*App, error) {
	if out == nil {
		out = os.Stdout
	}

	store, err := session.NewStore(configDir, workDir, cfg.Session.MaxTurns)
	if err != nil {
		return nil, err
	}

	pol := policy.New(workDir,
		policy.WithProtectedDirs(append([]string{configDir}, cfg.Policy.ProtectedDirs...)),
		policy.WithProtectedPatterns(cfg.Policy.ProtectedPatterns),
		policy.WithDeniedCommands(cfg.Policy.DeniedCommands),
	)

	var mgr *mcp.Manager
	var registryErrs []*config.EntryError
	if cfg.MCP.Enabled {
		servers, bad, err := config.LoadRegistry(cfg.MCP.RegistryPath)
		if err != nil {
			// A wholly unreadable registry disables MCP for the run but
			// never blocks startup.
			logging.Warn("mcp registry unavailable", "error", err)
			fmt.Fprintf(out, "warning: %v (MCP disabled for this run)\n", err)
			servers = map[string]mcp.ServerConfig{}
		}
		for _, e := range bad {
			logging.Warn("mcp registry entry skipped", "server", e.Server, "hint", e.Hint)
			fmt.Fprintf(out, "warning: %v (run /mcp-fix for details)\n", e)
		}
		mgr = mcp.NewManager(servers)
		registryErrs = bad
	} else {
		mgr = mcp.NewManager(nil)
	}

	execOpts := executor.DefaultOptions(workDir)
	execOpts.ShellTimeout = cfg.Shell.Timeout
	execOpts.OutputLimit = cfg.Shell.OutputLimit
	execOpts.FetchTimeout = cfg.Fetch.Timeout
	execOpts.FetchMaxSize = cfg.Fetch.MaxSize

	a := &App{
		cfg:          cfg,
		store:        store,
		policy:       pol,
		exec:         executor.New(execOpts, nil, &executor.BasicPDFConverter{}, mgr),
		mcpMgr:       mgr,
		model:        model,
		prompter:     prompter,
		out:          out,
		scope:        approval.NewScope(),
		registryErrs: registryErrs,
	}

	a.approver = approval.NewController(prompter)
	a.approver.Validate = a.validate

	a.sess = store.New(systemPrompt)
	return a, nil
}

// Run drives the interactive loop until the user exits or the initial
// question completes under --exit-after-answer.
func (a *App) Run(ctx context.Context, opts Options) error {
	a.opts = opts
	if opts.ApproveAll {
		a.scope.ArmApproveAll()
	}

	if opts.Recover {
		a.offerRecovery(ctx)
	}

	for name := range autoConnectSet(a.cfg.MCP.AutoConnect) {
		if err := a.mcpMgr.Connect(ctx, name); err != nil {
			fmt.Fprintf(a.out, "warning: %v\n", err)
		}
	}
	defer a.mcpMgr.DisconnectAll()

	if opts.InitialQuestion != "" {
		if err := a.ask(ctx, opts.InitialQuestion); err != nil {
			return err
		}
		if opts.ExitAfterAnswer {
			return nil
		}
	}

	for {
		line, err := a.prompter.Input(ctx, "> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case strings.HasPrefix(line, "/"):
			a.runCommand(ctx, line)
		default:
			if err := a.ask(ctx, line); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
		}
	}
}

// ask runs one user request to completion: model turns are exchanged until
// a reply carries no action, the round cap is hit, or the run is cancelled.
func (a *App) ask(ctx context.Context, question string) error {
	if err := a.store.Append(a.sess, session.RoleUser, question); err != nil {
		return err
	}

	for round := 0; round < maxActionRounds; round++ {
		reply, err := a.model.Send(ctx, a.sess.Turns)
		if err != nil {
			return fmt.Errorf("model request failed: %w", err)
		}

		if titles := parsePlanSteps(reply); len(titles) > 0 {
			if err := a.store.Append(a.sess, session.RoleAssistant, reply); err != nil {
				return err
			}
			return a.runPlan(ctx, titles)
		}

		outcome, err := a.runTurn(ctx, reply, a.scope)
		if err != nil {
			return err
		}

		switch outcome {
		case turnNoAction:
			fmt.Fprintln(a.out, strings.TrimSpace(reply))
			return nil
		case turnCancelled:
			// Cancellation ends this request and clears the approve-all
			// override; the next request starts from a fresh scope.
			a.scope = approval.NewScope()
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		// Executed, denied, or a parse correction: the result turn is in the
		// session; ask the model to continue.
	}

	fmt.Fprintln(a.out, "stopping: too many consecutive operations for one request")
	return nil
}

// validate adapts the security policy for approval-time re-checks of
// modified actions.
func (a *App) validate(act *operation.Action) (bool, string) {
	v := a.policy.Evaluate(act)
	return v.Allowed, v.Reason
}

func autoConnectSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
