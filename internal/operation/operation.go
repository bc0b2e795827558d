package operation

import "fmt"

// Kind identifies the variant of an Action.
type Kind int

const (
	KindShell Kind = iota
	KindRead
	KindWrite
	KindFetch
	KindToolCall
)

func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindFetch:
		return "fetch"
	case KindToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// Action is a single model-proposed side-effecting request. The variant is
// resolved once at parse time; downstream code switches on Kind and reads
// only the fields belonging to that variant.
type Action struct {
	Kind   Kind
	Marker string // caller-supplied correlation id, unique within a turn

	// Shell
	Command string

	// Read / Write
	Path     string
	FromLine int // 1-based inclusive, 0 = unset
	ToLine   int // 1-based inclusive, 0 = unset
	Content  string

	// Fetch
	URL string

	// ToolCall
	Server    string
	Tool      string
	Arguments map[string]any
}

// Describe returns a one-line human-readable summary for prompts and logs.
func (a *Action) Describe() string {
	switch a.Kind {
	case KindShell:
		cmd := a.Command
		if len(cmd) > 120 {
			cmd = cmd[:117] + "..."
		}
		return fmt.Sprintf("run command: %s", cmd)
	case KindRead:
		if a.FromLine > 0 || a.ToLine > 0 {
			return fmt.Sprintf("read file: %s (lines %d-%d)", a.Path, a.FromLine, a.ToLine)
		}
		return fmt.Sprintf("read file: %s", a.Path)
	case KindWrite:
		return fmt.Sprintf("write file: %s (%d bytes)", a.Path, len(a.Content))
	case KindFetch:
		return fmt.Sprintf("fetch URL: %s", a.URL)
	case KindToolCall:
		return fmt.Sprintf("call tool: %s/%s", a.Server, a.Tool)
	default:
		return "unknown operation"
	}
}

// ExecutionResult is the outcome of executing an Action. It is always
// produced; failures the model can react to are normal results with
// Success=false rather than Go errors.
type ExecutionResult struct {
	Success  bool
	Output   string
	ExitCode int
	Err      *Error

	// Image payload for multimodal consumption. Set only for image reads;
	// Output then carries a short description instead of file content.
	ImageData []byte
	ImageMIME string
}

// Ok builds a successful result.
func Ok(output string) ExecutionResult {
	return ExecutionResult{Success: true, Output: output}
}

// Fail builds a failed result carrying a typed error.
func Fail(kind ErrorKind, format string, args ...any) ExecutionResult {
	e := NewError(kind, format, args...)
	return ExecutionResult{Success: false, Output: e.Error(), Err: e}
}
