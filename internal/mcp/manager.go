// Package mcp connects external tool servers over a subprocess stdio
// JSON-RPC channel and exposes their tools as executable actions.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"goq/internal/logging"
)

// transportFactory spawns the transport for one server. Replaceable in tests.
type transportFactory func(cfg ServerConfig) (Transport, error)

// Manager owns every live server connection: the subprocess handle, its RPC
// channel, and the discovered tool list. No other component touches these.
type Manager struct {
	configs map[string]ServerConfig
	clients map[string]*Client
	tools   map[string][]*ToolInfo

	newTransport transportFactory
	mu           sync.RWMutex
}

// NewManager creates a manager over the configured servers. Nothing is
// connected until Connect or ConnectAll is called.
func NewManager(servers map[string]ServerConfig) *Manager {
	m := &Manager{
		configs: make(map[string]ServerConfig, len(servers)),
		clients: make(map[string]*Client),
		tools:   make(map[string][]*ToolInfo),
		newTransport: func(cfg ServerConfig) (Transport, error) {
			return NewStdioTransport(cfg.Command, cfg.Args, cfg.Env)
		},
	}
	for name, cfg := range servers {
		cfg.Name = name
		m.configs[name] = cfg
	}
	return m
}

// AddServer registers or replaces a server configuration. A live connection
// under the same name is shut down first.
func (m *Manager) AddServer(cfg ServerConfig) {
	m.Disconnect(cfg.Name)
	m.mu.Lock()
	m.configs[cfg.Name] = cfg
	m.mu.Unlock()
}

// RemoveServer disconnects and forgets a server.
func (m *Manager) RemoveServer(name string) {
	m.Disconnect(name)
	m.mu.Lock()
	delete(m.configs, name)
	m.mu.Unlock()
}

// Connect spawns the server, performs the handshake and enumerates tools.
// On any failure the subprocess and reader are torn down and the server is
// left unregistered; there is no half-connected state.
func (m *Manager) Connect(ctx context.Context, name string) error {
	m.mu.RLock()
	cfg, ok := m.configs[name]
	_, alreadyConnected := m.clients[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown MCP server %q", name)
	}
	if alreadyConnected {
		return nil
	}

	transport, err := m.newTransport(cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}

	client := NewClient(name, transport, cfg.Timeout)
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return fmt.Errorf("connect %s: %w", name, err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("connect %s: %w", name, err)
	}

	m.mu.Lock()
	m.clients[name] = client
	m.tools[name] = tools
	m.mu.Unlock()

	logging.Info("mcp server connected", "name", name, "tools", len(tools))
	return nil
}

// ConnectAll connects every configured server, collecting per-server errors
// so one broken server does not block the others.
func (m *Manager) ConnectAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	m.mu.RUnlock()

	errs := make(map[string]error)
	for _, name := range names {
		if err := m.Connect(ctx, name); err != nil {
			errs[name] = err
		}
	}
	return errs
}

// Disconnect terminates the subprocess and discards its channel and tool
// list. Idempotent: disconnecting an unknown or already-down server is a
// no-op.
func (m *Manager) Disconnect(name string) {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	delete(m.tools, name)
	m.mu.Unlock()

	if ok {
		client.Close()
		logging.Info("mcp server disconnected", "name", name)
	}
}

// DisconnectAll shuts down every live connection.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.tools = make(map[string][]*ToolInfo)
	m.mu.Unlock()

	for name, client := range clients {
		client.Close()
		logging.Debug("mcp server disconnected", "name", name)
	}
}

// Call implements the executor's ToolCaller: it sends a correlated request
// to the named server and flattens the tool result to text. A tool-level
// error comes back through isError; a missing server, missing response, or
// dead channel is a transport error.
func (m *Manager) Call(ctx context.Context, server, tool string, args map[string]any) (string, bool, error) {
	m.mu.RLock()
	client, ok := m.clients[server]
	m.mu.RUnlock()

	if !ok {
		return "", false, fmt.Errorf("MCP server %q is not connected", server)
	}

	result, err := client.CallTool(ctx, tool, args)
	if err != nil {
		return "", false, err
	}
	return flattenContent(result.Content), result.IsError, nil
}

// Tools lists discovered tools as "server/tool" with descriptions, sorted
// for stable display.
func (m *Manager) Tools() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for server, tools := range m.tools {
		for _, t := range tools {
			entry := server + "/" + t.Name
			if t.Description != "" {
				entry += ": " + t.Description
			}
			out = append(out, entry)
		}
	}
	sort.Strings(out)
	return out
}

// HasTool reports whether the named tool was discovered on the named server.
func (m *Manager) HasTool(server, tool string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tools[server] {
		if t.Name == tool {
			return true
		}
	}
	return false
}

// Servers describes the configured servers and their connection state,
// sorted by name.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for name, cfg := range m.configs {
		state := "disconnected"
		if _, ok := m.clients[name]; ok {
			state = "connected"
		}
		out = append(out, fmt.Sprintf("%s [%s] %s %s", name, state, cfg.Command, strings.Join(cfg.Args, " ")))
	}
	sort.Strings(out)
	return out
}

// Configs returns a copy of the current server configurations, for
// persisting registry changes.
func (m *Manager) Configs() map[string]ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ServerConfig, len(m.configs))
	for name, cfg := range m.configs {
		out[name] = cfg
	}
	return out
}

// Connected reports whether the named server has a live channel.
func (m *Manager) Connected(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[name]
	return ok
}

// flattenContent joins a tool result's blocks into a single text payload.
// Non-text blocks are represented by a short placeholder so the model knows
// something was there.
func flattenContent(blocks []*ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes base64]", b.MIMEType, len(b.Data)))
		default:
			parts = append(parts, fmt.Sprintf("[%s content]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
