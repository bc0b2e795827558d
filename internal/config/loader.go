package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file if present and applies environment
// overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(Dir(), "config.yaml")
	if err := loadFromFile(cfg, path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

// Dir returns the per-user configuration directory, created lazily by the
// callers that write into it.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "goq")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".goq"
	}
	if runtime.GOOS == "darwin" {
		appSupport := filepath.Join(home, "Library", "Application Support", "goq")
		if _, err := os.Stat(appSupport); err == nil {
			return appSupport
		}
	}
	return filepath.Join(home, ".config", "goq")
}

// loadFromFile parses the YAML file over the defaults. ${VAR} references in
// the file expand from the environment before parsing.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if level := os.Getenv("GOQ_LOG_LEVEL"); level != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = level
	}
	if os.Getenv("GOQ_DEBUG") != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = "debug"
	}
}

// normalize clamps nonsensical values back to the defaults.
func (c *Config) normalize() {
	if c.Session.MaxTurns <= 0 {
		c.Session.MaxTurns = DefaultMaxTurns
	}
	if c.Session.RecoveryTail <= 0 {
		c.Session.RecoveryTail = DefaultRecoveryTail
	}
	if c.Shell.Timeout <= 0 {
		c.Shell.Timeout = DefaultShellTimeout
	}
	if c.Shell.OutputLimit <= 0 {
		c.Shell.OutputLimit = DefaultOutputLimit
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
	if c.Fetch.MaxSize <= 0 {
		c.Fetch.MaxSize = DefaultFetchMaxSize
	}
	if c.MCP.RegistryPath == "" {
		c.MCP.RegistryPath = filepath.Join(Dir(), "mcp.json")
	}
}
