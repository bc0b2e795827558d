package operation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the turn loop can report. The set is
// closed: new failure modes get a new kind, never a bare error string.
type ErrorKind int

const (
	// ErrParse covers multiple or malformed operation blocks. The turn does
	// not execute; the model receives a correction request.
	ErrParse ErrorKind = iota
	// ErrPolicyDenied means the security policy refused the action before
	// any approval prompt. Terminal for the turn.
	ErrPolicyDenied
	// ErrExecution means a process could not start or filesystem I/O failed.
	ErrExecution
	// ErrNetwork covers fetch timeouts and unreachable endpoints.
	ErrNetwork
	// ErrMcpConnection covers MCP transport failures (spawn, handshake,
	// request timeout). Distinct from a tool-level error payload.
	ErrMcpConnection
	// ErrUnsupportedFileType is returned for reads of binary files that are
	// neither text, pdf, nor image.
	ErrUnsupportedFileType
	// ErrConversion means a pdf could not be converted to text.
	ErrConversion
	// ErrMalformed covers bad operation arguments discovered at execution
	// time, e.g. an out-of-range read line window.
	ErrMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParse:
		return "parse_error"
	case ErrPolicyDenied:
		return "policy_denied"
	case ErrExecution:
		return "execution_error"
	case ErrNetwork:
		return "network_error"
	case ErrMcpConnection:
		return "mcp_connection_error"
	case ErrUnsupportedFileType:
		return "unsupported_file_type"
	case ErrConversion:
		return "conversion_error"
	case ErrMalformed:
		return "malformed_operation"
	default:
		return "unknown"
	}
}

// Error is a typed failure with an ErrorKind and optional wrapped cause.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a typed error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates a typed error preserving the OS-level cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Returns ok=false when err carries no operation error.
func KindOf(err error) (ErrorKind, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an operation error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
