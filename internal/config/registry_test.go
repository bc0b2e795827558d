package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goq/internal/mcp"
)

func TestLoadRegistryMissingFile(t *testing.T) {
	servers, bad, err := LoadRegistry(filepath.Join(t.TempDir(), "mcp.json"))
	require.NoError(t, err)
	assert.Empty(t, servers)
	assert.Empty(t, bad)
}

func TestLoadRegistryToleratesBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	content := `{
  "mcpServers": {
    "good": {"command": "files-server", "args": ["--root", "/data"], "env": {"TOKEN": "x"}, "timeout_seconds": 10},
    "no-command": {"args": ["oops"]},
    "wrong-shape": ["not", "an", "object"]
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	servers, bad, err := LoadRegistry(path)
	require.NoError(t, err)

	// The usable entry survives.
	require.Contains(t, servers, "good")
	good := servers["good"]
	assert.Equal(t, "files-server", good.Command)
	assert.Equal(t, []string{"--root", "/data"}, good.Args)
	assert.Equal(t, "x", good.Env["TOKEN"])
	assert.Equal(t, 10*time.Second, good.Timeout)

	// The broken ones are reported, not fatal.
	require.Len(t, bad, 2)
	assert.Equal(t, "no-command", bad[0].Server)
	assert.Equal(t, "wrong-shape", bad[1].Server)
	assert.NotEmpty(t, bad[0].Hint)
}

func TestLoadRegistryWholeFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, _, err := LoadRegistry(path)
	assert.Error(t, err)
}

func TestSaveRegistryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	in := map[string]mcp.ServerConfig{
		"files": {Name: "files", Command: "files-server", Args: []string{"-v"}, Timeout: 5 * time.Second},
	}
	require.NoError(t, SaveRegistry(path, in))

	servers, bad, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Contains(t, servers, "files")
	assert.Equal(t, "files-server", servers["files"].Command)
	assert.Equal(t, []string{"-v"}, servers["files"].Args)
	assert.Equal(t, 5*time.Second, servers["files"].Timeout)
}

func TestDefaultConfigNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.MaxTurns = -1
	cfg.Shell.Timeout = 0
	cfg.normalize()

	assert.Equal(t, DefaultMaxTurns, cfg.Session.MaxTurns)
	assert.Equal(t, DefaultShellTimeout, cfg.Shell.Timeout)
	assert.NotEmpty(t, cfg.MCP.RegistryPath)
}
