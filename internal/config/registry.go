package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"goq/internal/fileutil"
	"goq/internal/mcp"
)

// registryFile is the on-disk shape of the MCP server registry. The format
// is shared with other MCP-speaking tools, so unknown fields are ignored.
type registryFile struct {
	Servers map[string]json.RawMessage `json:"mcpServers"`
}

type registryEntry struct {
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// EntryError marks one unusable registry entry. The rest of the registry
// stays available; startup never fails over a bad entry.
type EntryError struct {
	Server string
	Hint   string // what to change to make the entry valid
	Cause  error
}

func (e *EntryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mcp server %q: %s: %v", e.Server, e.Hint, e.Cause)
	}
	return fmt.Sprintf("mcp server %q: %s", e.Server, e.Hint)
}

func (e *EntryError) Unwrap() error { return e.Cause }

// LoadRegistry reads the MCP server registry. A missing file yields an
// empty registry. Entries that fail to parse or validate are returned as
// EntryErrors alongside the usable ones.
func LoadRegistry(path string) (map[string]mcp.ServerConfig, []*EntryError, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]mcp.ServerConfig{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read mcp registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("mcp registry %s is not valid JSON: %w", path, err)
	}

	servers := make(map[string]mcp.ServerConfig, len(file.Servers))
	var bad []*EntryError
	for name, raw := range file.Servers {
		var entry registryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			bad = append(bad, &EntryError{Server: name, Hint: "entry must be an object with a \"command\" field", Cause: err})
			continue
		}
		if entry.Command == "" {
			bad = append(bad, &EntryError{Server: name, Hint: "missing required \"command\" field"})
			continue
		}
		servers[name] = mcp.ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			Timeout: time.Duration(entry.TimeoutSeconds) * time.Second,
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i].Server < bad[j].Server })
	return servers, bad, nil
}

// SaveRegistry writes the registry atomically. Entries that could not be
// parsed on load are dropped; the caller is expected to have surfaced them
// first.
func SaveRegistry(path string, servers map[string]mcp.ServerConfig) error {
	file := registryFile{Servers: make(map[string]json.RawMessage, len(servers))}
	for name, cfg := range servers {
		entry := registryEntry{
			Command:        cfg.Command,
			Args:           cfg.Args,
			Env:            cfg.Env,
			TimeoutSeconds: int(cfg.Timeout / time.Second),
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("cannot encode mcp server %q: %w", name, err)
		}
		file.Servers[name] = raw
	}
	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode mcp registry: %w", err)
	}
	if err := fileutil.AtomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write mcp registry: %w", err)
	}
	return nil
}
