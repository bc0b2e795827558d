package approval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goq/internal/operation"
)

// scriptedPrompter feeds a fixed sequence of choices and inputs, recording
// everything shown.
type scriptedPrompter struct {
	choices []byte
	inputs  []string
	shown   []string
	prompts []string
}

func (p *scriptedPrompter) Choose(_ context.Context, prompt, choices string) (byte, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.choices) == 0 {
		panic("scripted prompter ran out of choices")
	}
	ch := p.choices[0]
	p.choices = p.choices[1:]
	return ch, nil
}

func (p *scriptedPrompter) Input(_ context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.inputs) == 0 {
		panic("scripted prompter ran out of inputs")
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	return in, nil
}

func (p *scriptedPrompter) Show(text string) {
	p.shown = append(p.shown, text)
}

func shellAction(cmd string) *operation.Action {
	return &operation.Action{Kind: operation.KindShell, Marker: "m1", Command: cmd}
}

func TestResolveApprove(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'A'}}
	c := NewController(p)

	out, err := c.Resolve(context.Background(), shellAction("echo hi"), NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)
	assert.Equal(t, "echo hi", out.Action.Command)
}

func TestResolveDeny(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'D'}}
	c := NewController(p)

	out, err := c.Resolve(context.Background(), shellAction("echo hi"), NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateDenied, out.State)
}

func TestResolveCancelMarksScope(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'C'}}
	c := NewController(p)
	scope := NewScope()

	out, err := c.Resolve(context.Background(), shellAction("echo hi"), scope)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, out.State)
	assert.True(t, scope.Cancelled())
}

func TestResolveCancelledScopeShortCircuits(t *testing.T) {
	p := &scriptedPrompter{} // any prompt would panic
	c := NewController(p)
	scope := NewScope()
	scope.Cancel()

	out, err := c.Resolve(context.Background(), shellAction("echo hi"), scope)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, out.State)
	assert.Empty(t, p.prompts)
}

func TestResolveApproveAllArmsScopeAndSkipsLaterPrompts(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'Y'}}
	c := NewController(p)
	scope := NewScope()

	out, err := c.Resolve(context.Background(), shellAction("first"), scope)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)
	assert.True(t, scope.ApproveAllActive())

	// Second action resolves without consuming any scripted choice.
	out2, err := c.Resolve(context.Background(), shellAction("second"), scope)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out2.State)
	assert.Empty(t, p.choices)
}

func TestResolveShowDetailsReturnsToPending(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'S', 'A'}}
	c := NewController(p)

	out, err := c.Resolve(context.Background(), shellAction("ls -la"), NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)

	joined := strings.Join(p.shown, "\n")
	assert.Contains(t, joined, "ls -la")
}

func TestResolveModifyShellReplacesAction(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'M', 'A'}, inputs: []string{"echo replaced"}}
	c := NewController(p)

	out, err := c.Resolve(context.Background(), shellAction("echo original"), NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)
	assert.Equal(t, "echo replaced", out.Action.Command)
}

func TestResolveModifyRejectedByPolicyKeepsOriginal(t *testing.T) {
	p := &scriptedPrompter{choices: []byte{'M', 'A'}, inputs: []string{"sudo reboot"}}
	c := NewController(p)
	c.Validate = func(a *operation.Action) (bool, string) {
		return !strings.Contains(a.Command, "sudo"), "privilege elevation"
	}

	out, err := c.Resolve(context.Background(), shellAction("echo safe"), NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)
	assert.Equal(t, "echo safe", out.Action.Command)
	assert.Contains(t, strings.Join(p.shown, "\n"), "privilege elevation")
}

func TestResolveWriteShowsDiffBeforePrompt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content\n"), 0o644))

	p := &scriptedPrompter{choices: []byte{'A'}}
	c := NewController(p)

	action := &operation.Action{Kind: operation.KindWrite, Marker: "w", Path: path, Content: "new content\n"}
	out, err := c.Resolve(context.Background(), action, NewScope())
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)

	require.NotEmpty(t, p.shown)
	assert.Contains(t, p.shown[0], "existing.txt")
}

func TestResolveWriteNewFileDiffAgainstEmptyBaseline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brand-new.txt")
	p := &scriptedPrompter{choices: []byte{'A'}}
	c := NewController(p)

	action := &operation.Action{Kind: operation.KindWrite, Marker: "w", Path: path, Content: "hello\n"}
	_, err := c.Resolve(context.Background(), action, NewScope())
	require.NoError(t, err)

	require.NotEmpty(t, p.shown)
	assert.Contains(t, p.shown[0], "New file")
}

func TestResolveApproveAllStillShowsWriteDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auto.txt")
	p := &scriptedPrompter{}
	c := NewController(p)
	scope := NewScope()
	scope.ArmApproveAll()

	action := &operation.Action{Kind: operation.KindWrite, Marker: "w", Path: path, Content: "x\n"}
	out, err := c.Resolve(context.Background(), action, scope)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, out.State)
	assert.NotEmpty(t, p.shown)
	assert.Empty(t, p.prompts)
}
