package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"goq/internal/logging"
)

// Transport frames JSON-RPC messages to and from a server.
type Transport interface {
	Send(msg *JSONRPCMessage) error
	// Receive blocks for the next message; io.EOF once closed.
	Receive() (*JSONRPCMessage, error)
	Close() error
}

// buildEnv overlays the server's declared variables onto the full current
// process environment; server-specific keys win on conflict. ${VAR}
// references in declared values expand from the parent environment.
func buildEnv(declared map[string]string) []string {
	env := os.Environ()
	for k, v := range declared {
		expanded := os.ExpandEnv(v)
		replaced := false
		prefix := k + "="
		for i, e := range env {
			if strings.HasPrefix(e, prefix) {
				env[i] = prefix + expanded
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, prefix+expanded)
		}
	}
	return env
}

// StdioTransport runs the server as a subprocess and speaks newline-delimited
// JSON-RPC over its standard streams.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr io.ReadCloser

	encoder *json.Encoder
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool

	stderrDone chan struct{}
}

const maxScannerBuffer = 1024 * 1024

// NewStdioTransport spawns the configured command. On any pipe or start
// failure the partially created process is torn down before returning.
func NewStdioTransport(command string, args []string, env map[string]string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = buildEnv(env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("cannot start server process: %w", err)
	}

	t := &StdioTransport{
		cmd:        cmd,
		stdin:      stdin,
		stderr:     stderr,
		encoder:    json.NewEncoder(stdin),
		scanner:    bufio.NewScanner(stdout),
		stderrDone: make(chan struct{}),
	}
	t.scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	go t.logStderr()

	logging.Debug("mcp stdio transport started",
		"command", command, "args", args, "pid", cmd.Process.Pid)
	return t, nil
}

func (t *StdioTransport) logStderr() {
	defer close(t.stderrDone)
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.Debug("mcp server stderr", "line", scanner.Text())
	}
}

// Send writes one message followed by a newline.
func (t *StdioTransport) Send(msg *JSONRPCMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	msg.JSONRPC = "2.0"
	if err := t.encoder.Encode(msg); err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return nil
}

// Receive reads the next newline-delimited message.
func (t *StdioTransport) Receive() (*JSONRPCMessage, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, io.EOF
	}
	t.mu.Unlock()

	for {
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, fmt.Errorf("scanner: %w", err)
			}
			return nil, io.EOF
		}
		line := t.scanner.Text()
		if line == "" {
			continue
		}
		var msg JSONRPCMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("parse message: %w", err)
		}
		return &msg, nil
	}
}

// Close shuts stdin to signal the server, then waits with a kill fallback.
// Idempotent.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.stdin != nil {
		t.stdin.Close()
	}

	select {
	case <-t.stderrDone:
	case <-time.After(time.Second):
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case <-done:
		logging.Debug("mcp server process exited")
	case <-time.After(5 * time.Second):
		logging.Warn("mcp server not responding, killing process")
		if t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		<-done
	}
	return nil
}
