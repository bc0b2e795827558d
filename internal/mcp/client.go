package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"goq/internal/logging"
)

// defaultCallTimeout bounds every request round-trip when the server config
// does not set one. A request with no matching response inside the window is
// a transport failure, not a tool failure.
const defaultCallTimeout = 30 * time.Second

// Client correlates JSON-RPC requests with responses over one transport. A
// single background reader owns the receive side so response framing never
// blocks the writer.
type Client struct {
	transport  Transport
	serverName string
	timeout    time.Duration

	serverInfo  *ServerInfo
	initialized bool
	mu          sync.RWMutex

	nextID    int64
	pending   map[int64]chan *JSONRPCMessage
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient wraps an already-open transport and starts the reader.
func NewClient(serverName string, transport Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:  transport,
		serverName: serverName,
		timeout:    timeout,
		pending:    make(map[int64]chan *JSONRPCMessage),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// receiveLoop delivers completed responses to waiting calls via a single-slot
// handoff keyed by correlation id.
func (c *Client) receiveLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			if c.ctx.Err() == nil {
				logging.Warn("mcp receive error", "server", c.serverName, "error", err)
			}
			return
		}

		switch {
		case msg.IsResponse():
			id, ok := msg.ID.(float64) // JSON numbers decode as float64
			if !ok {
				logging.Warn("mcp response with invalid id", "id", msg.ID)
				continue
			}
			c.pendingMu.Lock()
			ch, exists := c.pending[int64(id)]
			if exists {
				delete(c.pending, int64(id))
			}
			c.pendingMu.Unlock()
			if exists {
				ch <- msg // buffered, never blocks
			} else {
				logging.Warn("mcp response for unknown request", "id", id)
			}
		case msg.IsNotification():
			logging.Debug("mcp notification", "server", c.serverName, "method", msg.Method)
		}
	}
}

func (c *Client) request(ctx context.Context, method string, params any) (*JSONRPCMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)

	respCh := make(chan *JSONRPCMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Send(&JSONRPCMessage{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("request %s timed out after %v", method, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection to %s lost", c.serverName)
	}
}

func (c *Client) notify(method string, params any) error {
	return c.transport.Send(&JSONRPCMessage{Method: method, Params: params})
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	params := &InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      &ClientInfo{Name: "goq", Version: "1.0.0"},
		Capabilities:    map[string]any{},
	}
	resp, err := c.request(ctx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result InitializeResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return fmt.Errorf("initialize result: %w", err)
	}
	c.serverInfo = result.ServerInfo

	if err := c.notify(MethodInitialized, nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	c.initialized = true

	name, version := "", ""
	if c.serverInfo != nil {
		name, version = c.serverInfo.Name, c.serverInfo.Version
	}
	logging.Info("mcp server initialized", "name", c.serverName, "server", name, "version", version)
	return nil
}

// ListTools enumerates the server's tools.
func (c *Client) ListTools(ctx context.Context) ([]*ToolInfo, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}
	resp, err := c.request(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result ListToolsResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool and returns its result payload.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}
	resp, err := c.request(ctx, MethodToolsCall, &CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call: %w", err)
	}
	var result CallToolResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("tools/call result: %w", err)
	}
	return &result, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsInitialized() {
		return fmt.Errorf("client not initialized")
	}
	_, err := c.request(ctx, MethodPing, nil)
	return err
}

// ServerInfo returns the handshake identity, nil before Initialize.
func (c *Client) Info() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// IsInitialized reports whether the handshake completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Close tears down the reader and the transport on every exit path.
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		logging.Warn("mcp client receive loop did not stop in time", "server", c.serverName)
	}
	return err
}

// decodeResult re-marshals the untyped result into its concrete shape.
func decodeResult(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
