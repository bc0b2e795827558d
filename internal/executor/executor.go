// Package executor performs the approved actions and reports structured
// results. Failures the model can react to come back as unsuccessful results,
// never as dropped errors.
package executor

import (
	"context"
	"time"

	"goq/internal/operation"
)

// ToolCaller dispatches tool-call actions to connected MCP servers.
// Implemented by mcp.Manager.
type ToolCaller interface {
	// Call invokes a remote tool. A tool-level failure is reported through
	// isError with the error payload in output; a returned error means the
	// transport itself failed.
	Call(ctx context.Context, server, tool string, args map[string]any) (output string, isError bool, err error)
}

// Options bound the side effects of execution.
type Options struct {
	WorkDir      string
	ShellTimeout time.Duration
	FetchTimeout time.Duration
	FetchMaxSize int64
	OutputLimit  int // byte cap on captured shell output
}

// DefaultOptions returns the executor defaults used when configuration is
// silent.
func DefaultOptions(workDir string) Options {
	return Options{
		WorkDir:      workDir,
		ShellTimeout: 2 * time.Minute,
		FetchTimeout: 30 * time.Second,
		FetchMaxSize: 1024 * 1024,
		OutputLimit:  256 * 1024,
	}
}

// Executor runs the built-in operation kinds plus MCP tool calls.
type Executor struct {
	opts       Options
	classifier Classifier
	converter  PDFConverter
	tools      ToolCaller
}

// New creates an Executor. converter may be nil, in which case pdf reads
// report a conversion error; tools may be nil, in which case tool calls
// report a connection error.
func New(opts Options, classifier Classifier, converter PDFConverter, tools ToolCaller) *Executor {
	if classifier == nil {
		classifier = ContentClassifier{}
	}
	return &Executor{opts: opts, classifier: classifier, converter: converter, tools: tools}
}

// Run executes one approved action to completion.
func (e *Executor) Run(ctx context.Context, action *operation.Action) operation.ExecutionResult {
	switch action.Kind {
	case operation.KindShell:
		return e.runShell(ctx, action)
	case operation.KindRead:
		return e.runRead(action)
	case operation.KindWrite:
		return e.runWrite(action)
	case operation.KindFetch:
		return e.runFetch(ctx, action)
	case operation.KindToolCall:
		return e.runToolCall(ctx, action)
	default:
		return operation.Fail(operation.ErrMalformed, "unknown operation kind")
	}
}

func (e *Executor) runToolCall(ctx context.Context, action *operation.Action) operation.ExecutionResult {
	if e.tools == nil {
		return operation.Fail(operation.ErrMcpConnection, "no MCP servers are connected")
	}
	output, isError, err := e.tools.Call(ctx, action.Server, action.Tool, action.Arguments)
	if err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrMcpConnection, err, "tool call %s/%s", action.Server, action.Tool)
		return res
	}
	if isError {
		// Tool-level failure is a normal result the model interprets.
		return operation.ExecutionResult{Success: false, Output: output}
	}
	return operation.Ok(output)
}
