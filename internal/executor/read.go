package executor

import (
	"fmt"
	"os"
	"strings"

	"goq/internal/operation"
)

const classifyHeadSize = 512

// runRead classifies the target by content and returns it in the form the
// classification dictates. Unsupported kinds are rejected whole, never
// partially read.
func (e *Executor) runRead(action *operation.Action) operation.ExecutionResult {
	data, err := os.ReadFile(action.Path)
	if err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrExecution, err, "cannot read %s", action.Path)
		return res
	}

	head := data
	if len(head) > classifyHeadSize {
		head = head[:classifyHeadSize]
	}
	kind, mime := e.classifier.Classify(action.Path, head)

	switch kind {
	case FileText:
		return sliceLines(string(data), action.FromLine, action.ToLine)

	case FilePDF:
		if e.converter == nil {
			return operation.Fail(operation.ErrConversion, "no pdf converter available for %s", action.Path)
		}
		text, err := e.converter.Convert(data)
		if err != nil {
			res := operation.ExecutionResult{Success: false, Output: err.Error()}
			res.Err = operation.WrapError(operation.ErrConversion, err, "cannot convert %s", action.Path)
			return res
		}
		return operation.Ok(text)

	case FileImage:
		return operation.ExecutionResult{
			Success:   true,
			Output:    fmt.Sprintf("[image %s, %d bytes, %s]", action.Path, len(data), mime),
			ImageData: data,
			ImageMIME: mime,
		}

	default:
		return operation.Fail(operation.ErrUnsupportedFileType, "%s has an unsupported file type", action.Path)
	}
}

// sliceLines applies the optional 1-based inclusive [from,to] window.
// Lines are rejoined exactly as stored, without a trailing newline being
// invented or dropped inside the window.
func sliceLines(content string, from, to int) operation.ExecutionResult {
	if from == 0 && to == 0 {
		return operation.Ok(content)
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty trailing element that is not a
	// line of the file.
	n := len(lines)
	if n > 0 && lines[n-1] == "" {
		n--
	}

	if from == 0 {
		from = 1
	}
	if to == 0 {
		to = n
	}
	if from > to {
		return operation.Fail(operation.ErrMalformed, "invalid line range: from %d > to %d", from, to)
	}
	if from < 1 || to > n {
		return operation.Fail(operation.ErrMalformed, "line range [%d,%d] is outside the file (%d lines)", from, to, n)
	}

	return operation.Ok(strings.Join(lines[from-1:to], "\n"))
}
