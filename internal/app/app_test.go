package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goq/internal/config"
	"goq/internal/session"
)

// fakeModel replays scripted replies in order.
type fakeModel struct {
	replies []string
	calls   int
}

func (m *fakeModel) Send(_ context.Context, _ []session.Turn) (string, error) {
	if m.calls >= len(m.replies) {
		return "", fmt.Errorf("model script exhausted after %d calls", m.calls)
	}
	reply := m.replies[m.calls]
	m.calls++
	return reply, nil
}

// scriptedPrompter panics when consulted unexpectedly, which is exactly what
// the policy-denial tests rely on.
type scriptedPrompter struct {
	choices []byte
	inputs  []string
	shown   []string
}

func (p *scriptedPrompter) Choose(_ context.Context, _, _ string) (byte, error) {
	if len(p.choices) == 0 {
		panic("unexpected approval prompt")
	}
	ch := p.choices[0]
	p.choices = p.choices[1:]
	return ch, nil
}

func (p *scriptedPrompter) Input(_ context.Context, _ string) (string, error) {
	if len(p.inputs) == 0 {
		panic("unexpected input prompt")
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	return in, nil
}

func (p *scriptedPrompter) Show(text string) { p.shown = append(p.shown, text) }

func newTestApp(t *testing.T, model *fakeModel, prompter *scriptedPrompter) (*App, *bytes.Buffer, string) {
	t.Helper()
	out := &bytes.Buffer{}
	workDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.MCP.Enabled = false

	a, err := New(cfg, t.TempDir(), workDir, model, prompter, out)
	require.NoError(t, err)
	return a, out, workDir
}

func lastResultTurn(t *testing.T, sess *session.Session) string {
	t.Helper()
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].Role == session.RoleResult {
			return sess.Turns[i].Content
		}
	}
	t.Fatal("no result turn in session")
	return ""
}

func TestEndToEndShellEchoHi(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="op-1">echo hi</operation>`,
		"The command printed hi.",
	}}
	prompter := &scriptedPrompter{choices: []byte{'A'}}
	a, out, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "run echo hi"))

	result := lastResultTurn(t, a.sess)
	assert.Contains(t, result, "op-1")
	assert.Contains(t, result, "hi")
	assert.Contains(t, result, "exit 0")
	assert.Contains(t, out.String(), "The command printed hi.")
}

func TestEndToEndDestructiveCommandDeniedBeforePrompt(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="op-1">rm -rf /</operation>`,
		"Understood, I will not run that.",
	}}
	// No scripted choices: any prompt would panic the test.
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "clean up everything"))

	result := lastResultTurn(t, a.sess)
	assert.Contains(t, result, "Denied")
	assert.Contains(t, result, "STOP:")
}

func TestEndToEndProtectedPathWriteDenied(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="write" marker="w1" path="/etc/passwd">x</operation>`,
		"Okay.",
	}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "edit passwd"))

	result := lastResultTurn(t, a.sess)
	assert.Contains(t, result, "Denied")
}

func TestEndToEndReadLineRange(t *testing.T) {
	model := &fakeModel{replies: []string{"", "Lines 2 and 3 say l2 and l3."}}
	prompter := &scriptedPrompter{choices: []byte{'A'}}
	a, _, workDir := newTestApp(t, model, prompter)

	path := filepath.Join(workDir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("l1\nl2\nl3\nl4\nl5\n"), 0o644))
	model.replies[0] = fmt.Sprintf(`<operation type="read" marker="r1" from="2" to="3">%s</operation>`, path)

	require.NoError(t, a.ask(context.Background(), "read the middle"))

	result := lastResultTurn(t, a.sess)
	assert.Contains(t, result, "l2\nl3")
	assert.NotContains(t, result, "l4")
}

func TestEndToEndWriteInProjectRoot(t *testing.T) {
	model := &fakeModel{replies: []string{"", "Written."}}
	prompter := &scriptedPrompter{choices: []byte{'A'}}
	a, _, workDir := newTestApp(t, model, prompter)

	path := filepath.Join(workDir, "new.txt")
	model.replies[0] = fmt.Sprintf(`<operation type="write" marker="w1" path="%s">hello file
</operation>`, path)

	require.NoError(t, a.ask(context.Background(), "create the file"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello file\n", string(data))
	// The diff preview was rendered before the approval prompt.
	require.NotEmpty(t, prompter.shown)
	assert.Contains(t, prompter.shown[0], "new.txt")
}

func TestEndToEndParseErrorBecomesCorrectionRequest(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="a">ls</operation>
<operation type="shell" marker="b">pwd</operation>`,
		"Sorry, one at a time.",
	}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "list and pwd"))

	result := lastResultTurn(t, a.sess)
	assert.Contains(t, result, "error:")
	assert.Contains(t, result, "one well-formed operation block")
}

func TestEndToEndUserDenialFoldsSignal(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="op-1">touch unwanted.txt</operation>`,
		"Understood.",
	}}
	prompter := &scriptedPrompter{choices: []byte{'D'}}
	a, _, workDir := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "make a file"))

	assert.Contains(t, lastResultTurn(t, a.sess), "Denied")
	_, err := os.Stat(filepath.Join(workDir, "unwanted.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApproveAllRunNeverPrompts(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="1">echo one</operation>`,
		`<operation type="shell" marker="2">echo two</operation>`,
		"Both ran.",
	}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)
	a.scope.ArmApproveAll()

	require.NoError(t, a.ask(context.Background(), "run both"))
	assert.Contains(t, lastResultTurn(t, a.sess), "two")
}

func TestCancelEndsRequest(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="1">echo one</operation>`,
	}}
	prompter := &scriptedPrompter{choices: []byte{'C'}}
	a, out, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "do it"))
	assert.Contains(t, out.String(), "cancelled")
	// The next request starts from a fresh scope.
	assert.False(t, a.scope.Cancelled())
}

func TestClearResetsMemoryButNotDisk(t *testing.T) {
	model := &fakeModel{replies: []string{"Just an answer."}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.ask(context.Background(), "hello"))
	onDisk, err := os.ReadFile(a.store.Path())
	require.NoError(t, err)

	a.runCommand(context.Background(), "/clear")

	require.Len(t, a.sess.Turns, 1)
	assert.Equal(t, session.RoleSystem, a.sess.Turns[0].Role)

	after, err := os.ReadFile(a.store.Path())
	require.NoError(t, err)
	assert.Equal(t, onDisk, after)
}

func TestRecoveryRestoresPreviousSession(t *testing.T) {
	model := &fakeModel{replies: []string{"First answer."}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)
	require.NoError(t, a.ask(context.Background(), "remember this"))
	savedID := a.sess.ID

	// Simulate a restart: fresh in-memory session over the same store.
	a.sess = a.store.New(systemPrompt)
	prompter.choices = []byte{'Y'}
	a.offerRecovery(context.Background())

	assert.Equal(t, savedID, a.sess.ID)
	found := false
	for _, turn := range a.sess.Turns {
		if strings.Contains(turn.Content, "remember this") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecoveryDeclinedKeepsFileAndFreshSession(t *testing.T) {
	model := &fakeModel{replies: []string{"First answer."}}
	prompter := &scriptedPrompter{}
	a, _, _ := newTestApp(t, model, prompter)
	require.NoError(t, a.ask(context.Background(), "keep this on disk"))

	a.sess = a.store.New(systemPrompt)
	freshID := a.sess.ID
	prompter.choices = []byte{'N'}
	a.offerRecovery(context.Background())

	assert.Equal(t, freshID, a.sess.ID)
	loaded, err := a.store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
}

func TestRecoveryCorruptFileFallsBackToFresh(t *testing.T) {
	model := &fakeModel{}
	prompter := &scriptedPrompter{}
	a, out, _ := newTestApp(t, model, prompter)

	require.NoError(t, os.MkdirAll(filepath.Dir(a.store.Path()), 0o755))
	require.NoError(t, os.WriteFile(a.store.Path(), []byte("{corrupt"), 0o600))

	a.offerRecovery(context.Background())
	assert.Contains(t, out.String(), "starting fresh")
	require.Len(t, a.sess.Turns, 1)
}

func TestPlanApproveAllAndCancelFlow(t *testing.T) {
	// The model proposes a three step plan, then one shell action per step.
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="s1">echo step-one</operation>`,
		`<operation type="shell" marker="s2">echo step-two</operation>`,
		`<operation type="shell" marker="s3">echo step-three</operation>`,
	}}
	// Confirm plan, approve-all at the first step prompt.
	prompter := &scriptedPrompter{choices: []byte{'Y', 'Y'}}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.runPlan(context.Background(), []string{"first", "second", "third"}))

	// All three steps executed with a single approval prompt.
	assert.Equal(t, 3, model.calls)
	assert.Contains(t, lastResultTurn(t, a.sess), "step-three")
	assert.Empty(t, prompter.choices)
}

func TestPlanCancelStopsRemainingSteps(t *testing.T) {
	model := &fakeModel{replies: []string{
		`<operation type="shell" marker="s1">echo step-one</operation>`,
		`<operation type="shell" marker="s2">echo step-two</operation>`,
	}}
	// Confirm plan, approve step 1, cancel at step 2.
	prompter := &scriptedPrompter{choices: []byte{'Y', 'A', 'C'}}
	a, _, _ := newTestApp(t, model, prompter)

	require.NoError(t, a.runPlan(context.Background(), []string{"first", "second", "third"}))

	// Step 3 never asked the model for an action.
	assert.Equal(t, 2, model.calls)
}

func TestParsePlanSteps(t *testing.T) {
	reply := `I suggest the following.
PLAN: tidy the repo
1. remove stale files
2) update the readme
3. run the tests
Let me know.`
	steps := parsePlanSteps(reply)
	require.Len(t, steps, 3)
	assert.Equal(t, "remove stale files", steps[0])
	assert.Equal(t, "update the readme", steps[1])

	assert.Nil(t, parsePlanSteps("no plan here"))
	assert.Nil(t, parsePlanSteps("PLAN: single\n1. only one step"))
	assert.Nil(t, parsePlanSteps(`PLAN: x
1. a
2. b
<operation type="shell" marker="m">ls</operation>`))
}

func TestAskStopsAfterRoundCap(t *testing.T) {
	replies := make([]string, maxActionRounds)
	for i := range replies {
		replies[i] = fmt.Sprintf(`<operation type="shell" marker="m%d">echo loop</operation>`, i)
	}
	model := &fakeModel{replies: replies}
	prompter := &scriptedPrompter{}
	a, out, _ := newTestApp(t, model, prompter)
	a.scope.ArmApproveAll()

	require.NoError(t, a.ask(context.Background(), "loop forever"))
	assert.Contains(t, out.String(), "too many consecutive operations")
}
