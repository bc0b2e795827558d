package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"goq/internal/session"
)

// CommandModel is a ModelClient backed by an external command. The full
// conversation is written to the command's stdin as JSON and its stdout is
// taken as the model reply. This keeps the model backend swappable without
// teaching the loop any provider API.
type CommandModel struct {
	Command string
	Args    []string
}

// Send runs one model exchange.
func (m *CommandModel) Send(ctx context.Context, turns []session.Turn) (string, error) {
	payload, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("cannot encode conversation: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.Command, m.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if errBuf.Len() > 0 {
			return "", fmt.Errorf("model command failed: %v: %s", err, errBuf.String())
		}
		return "", fmt.Errorf("model command failed: %w", err)
	}
	return out.String(), nil
}
