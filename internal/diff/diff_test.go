package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeNewFileIsFullAddition(t *testing.T) {
	p := Compute("notes.txt", "", "one\ntwo\nthree\n", true)

	assert.True(t, p.IsNewFile)
	assert.Equal(t, 3, p.Added)
	assert.Equal(t, 0, p.Removed)
	assert.Contains(t, p.Unified, "+one")
	assert.Contains(t, p.Unified, "+two")
	assert.Contains(t, p.Unified, "+three")
	assert.NotContains(t, p.Unified, "\n-")
}

func TestComputeIdenticalContentIsEmpty(t *testing.T) {
	content := "alpha\nbeta\n"
	p := Compute("same.txt", content, content, false)

	assert.True(t, p.Empty())
	assert.Equal(t, 0, p.Added)
	assert.Equal(t, 0, p.Removed)
}

func TestComputeModification(t *testing.T) {
	p := Compute("main.go", "old line\nkeep\n", "new line\nkeep\n", false)

	assert.False(t, p.Empty())
	assert.GreaterOrEqual(t, p.Added, 1)
	assert.GreaterOrEqual(t, p.Removed, 1)
	assert.Contains(t, p.Unified, "--- main.go")
	assert.Contains(t, p.Unified, "+++ main.go")
}

func TestRenderCarriesCountsAndLabel(t *testing.T) {
	p := Compute("fresh.txt", "", "x\n", true)
	out := p.Render()

	assert.True(t, strings.Contains(out, "New file"))
	assert.True(t, strings.Contains(out, "fresh.txt"))
	assert.True(t, strings.Contains(out, "+1"))

	p2 := Compute("mod.txt", "a\n", "b\n", false)
	assert.True(t, strings.Contains(p2.Render(), "Modified"))
}
