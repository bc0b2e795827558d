package mcp

import "time"

// JSONRPCMessage is the JSON-RPC 2.0 framing shared by requests, responses
// and notifications.
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method,omitempty"`
	Params  any    `json:"params,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// IsResponse reports whether the message answers an outstanding request.
func (m *JSONRPCMessage) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// IsNotification reports whether the message is a server notification.
func (m *JSONRPCMessage) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ServerInfo identifies the remote server after the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies this client in the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the parameters for the initialize request.
type InitializeParams struct {
	ProtocolVersion string      `json:"protocolVersion"`
	ClientInfo      *ClientInfo `json:"clientInfo"`
	Capabilities    any         `json:"capabilities,omitempty"`
}

// InitializeResult is the handshake response.
type InitializeResult struct {
	ProtocolVersion string      `json:"protocolVersion"`
	ServerInfo      *ServerInfo `json:"serverInfo"`
	Capabilities    any         `json:"capabilities,omitempty"`
}

// ToolInfo describes one remote tool.
type ToolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema *JSONSchema `json:"inputSchema,omitempty"`
}

// JSONSchema is the subset of JSON Schema servers use for tool inputs.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []*ToolInfo `json:"tools"`
}

// CallToolParams are the parameters for tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the result of tools/call. IsError marks a tool-level
// failure the model interprets; transport failures never produce one.
type CallToolResult struct {
	Content []*ContentBlock `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// ContentBlock is one piece of tool output.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// ServerConfig describes how to spawn one stdio server. It is plain data
// handed over by the configuration loader; this package never reads files.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)
