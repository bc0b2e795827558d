// Package config loads the YAML application configuration and the JSON
// MCP server registry.
package config

import "time"

// Defaults applied when the config file is absent or silent.
const (
	DefaultMaxTurns     = 10
	DefaultShellTimeout = 2 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
	DefaultFetchMaxSize = 1 << 20  // 1 MiB
	DefaultOutputLimit  = 256_000  // combined stdout+stderr cap
	DefaultRecoveryTail = 6        // turns shown in the --recover preview
)

// Config is the application configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Policy  PolicyConfig  `yaml:"policy"`
	Shell   ShellConfig   `yaml:"shell"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Logging LoggingConfig `yaml:"logging"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// SessionConfig bounds the persisted conversation.
type SessionConfig struct {
	MaxTurns     int `yaml:"max_turns"`
	RecoveryTail int `yaml:"recovery_tail"`
}

// PolicyConfig extends the built-in security rules.
type PolicyConfig struct {
	ProtectedDirs     []string `yaml:"protected_dirs"`
	ProtectedPatterns []string `yaml:"protected_patterns"` // doublestar globs
	DeniedCommands    []string `yaml:"denied_commands"`    // substring matches
}

// ShellConfig controls shell action execution.
type ShellConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	OutputLimit int           `yaml:"output_limit"`
}

// FetchConfig controls URL fetch actions.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	MaxSize int64         `yaml:"max_size"`
}

// LoggingConfig controls the debug log file.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// MCPConfig points at the server registry. Server definitions live in a
// separate JSON file so other MCP-speaking tools can share it.
type MCPConfig struct {
	Enabled      bool     `yaml:"enabled"`
	RegistryPath string   `yaml:"registry_path,omitempty"` // default <configdir>/mcp.json
	AutoConnect  []string `yaml:"auto_connect,omitempty"`
}

// DefaultConfig returns the configuration used before any file or
// environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			MaxTurns:     DefaultMaxTurns,
			RecoveryTail: DefaultRecoveryTail,
		},
		Shell: ShellConfig{
			Timeout:     DefaultShellTimeout,
			OutputLimit: DefaultOutputLimit,
		},
		Fetch: FetchConfig{
			Timeout: DefaultFetchTimeout,
			MaxSize: DefaultFetchMaxSize,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
