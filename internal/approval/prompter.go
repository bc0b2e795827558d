package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// TerminalPrompter reads decisions from an interactive terminal. Input is
// line-buffered: the user types the choice character and presses enter.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Choose displays prompt and reads characters until one of choices appears.
func (p *TerminalPrompter) Choose(ctx context.Context, prompt, choices string) (byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fmt.Fprint(p.out, promptStyle.Render(prompt))
		line, err := p.in.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimSpace(line)
		if len(line) != 1 {
			fmt.Fprintln(p.out, infoStyle.Render("enter a single character"))
			continue
		}
		ch := strings.ToUpper(line)[0]
		if strings.IndexByte(choices, ch) < 0 {
			fmt.Fprintln(p.out, infoStyle.Render("valid choices: "+choices))
			continue
		}
		return ch, nil
	}
}

// Input reads one full line.
func (p *TerminalPrompter) Input(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, promptStyle.Render(prompt))
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Show writes informational text to the terminal.
func (p *TerminalPrompter) Show(text string) {
	fmt.Fprintln(p.out, text)
}
