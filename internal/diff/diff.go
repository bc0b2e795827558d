// Package diff computes and renders the textual diff shown before a write is
// approved.
package diff

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Preview is a computed diff between on-disk content and a proposed write.
type Preview struct {
	Path      string
	Unified   string
	Added     int
	Removed   int
	IsNewFile bool
}

// Empty reports whether the proposed content equals the baseline.
func (p *Preview) Empty() bool {
	return p.Added == 0 && p.Removed == 0
}

// Compute builds a Preview. For files that do not exist yet the baseline is
// empty, so the diff degenerates to a full addition.
func Compute(path, oldContent, newContent string, isNewFile bool) *Preview {
	p := &Preview{Path: path, IsNewFile: isNewFile}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- %s\n", path))
	b.WriteString(fmt.Sprintf("+++ %s\n", path))

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		for i, line := range lines {
			// Split leaves a trailing empty element when the chunk ends
			// with a newline.
			if i == len(lines)-1 && line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				b.WriteString(" " + line + "\n")
			case diffmatchpatch.DiffDelete:
				b.WriteString("-" + line + "\n")
				p.Removed++
			case diffmatchpatch.DiffInsert:
				b.WriteString("+" + line + "\n")
				p.Added++
			}
		}
	}

	p.Unified = b.String()
	return p
}

var (
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// Render colorizes the preview for terminal display, with a one-line header
// describing the change.
func (p *Preview) Render() string {
	var b strings.Builder

	label := "Modified"
	if p.IsNewFile {
		label = "New file"
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s: %s", label, p.Path)))
	b.WriteString("  ")
	b.WriteString(addedStyle.Render(fmt.Sprintf("+%d", p.Added)))
	b.WriteString(" ")
	b.WriteString(removedStyle.Render(fmt.Sprintf("-%d", p.Removed)))
	b.WriteString("\n")

	for _, line := range strings.Split(p.Unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(headerStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(addedStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(removedStyle.Render(line))
		default:
			b.WriteString(contextStyle.Render(line))
		}
		b.WriteString("\n")
	}

	return b.String()
}
