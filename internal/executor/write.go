package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"goq/internal/diff"
	"goq/internal/fileutil"
	"goq/internal/operation"
)

// runWrite persists the payload byte-for-byte, creating parent directories as
// needed. The result summarizes the change the way the preview counted it.
func (e *Executor) runWrite(action *operation.Action) operation.ExecutionResult {
	old, err := os.ReadFile(action.Path)
	isNew := err != nil
	if err != nil && !os.IsNotExist(err) {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrExecution, err, "cannot read existing %s", action.Path)
		return res
	}

	preview := diff.Compute(action.Path, string(old), action.Content, isNew)

	if err := os.MkdirAll(filepath.Dir(action.Path), 0o755); err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrExecution, err, "cannot create parent directories for %s", action.Path)
		return res
	}

	// No transformation and no re-escaping: the payload is the file.
	if err := fileutil.AtomicWrite(action.Path, []byte(action.Content), 0o644); err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrExecution, err, "cannot write %s", action.Path)
		return res
	}

	verb := "Updated"
	if isNew {
		verb = "Created"
	}
	return operation.Ok(fmt.Sprintf("%s %s (+%d -%d, %d bytes)",
		verb, action.Path, preview.Added, preview.Removed, len(action.Content)))
}
