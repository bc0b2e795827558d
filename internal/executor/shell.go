package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"goq/internal/logging"
	"goq/internal/operation"
)

// runShell executes the command in the user's working directory with combined
// stdout+stderr capture. A non-zero exit is a normal result the model must
// interpret; only failure to start the process is an execution error.
func (e *Executor) runShell(ctx context.Context, action *operation.Action) operation.ExecutionResult {
	if e.opts.ShellTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ShellTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", action.Command)
	cmd.Dir = e.opts.WorkDir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()

	output := buf.String()
	if e.opts.OutputLimit > 0 && len(output) > e.opts.OutputLimit {
		output = output[:e.opts.OutputLimit] + "\n... (output truncated)"
	}

	if err == nil {
		logging.Debug("shell command completed", "command", action.Command, "exit", 0)
		return operation.ExecutionResult{Success: true, Output: output, ExitCode: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		logging.Debug("shell command completed", "command", action.Command, "exit", code)
		if ctx.Err() == context.DeadlineExceeded {
			output += fmt.Sprintf("\n(command timed out after %s)", e.opts.ShellTimeout)
		}
		return operation.ExecutionResult{Success: true, Output: output, ExitCode: code}
	}

	// The process never started.
	res := operation.ExecutionResult{Success: false, Output: err.Error(), ExitCode: -1}
	res.Err = operation.WrapError(operation.ErrExecution, err, "cannot start command")
	return res
}
