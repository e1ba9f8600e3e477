package mcp

import (
	"context"
	"sync"

	"github.com/supernovae-st/nika-sub001/engine/errs"
)

// ToolHandler implements a fake tool's behavior for MockTransport.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// MockTransport is an in-process stand-in for a real MCP subprocess,
// letting task executor and agent loop tests exercise C4's call surface
// without spawning anything (spec §8 "Test tooling").
type MockTransport struct {
	name      string
	mu        sync.Mutex
	tools     []Tool
	resources []Resource
	handlers  map[string]ToolHandler
	reads     map[string]string
	connected bool
}

// NewMockTransport creates a disconnected mock for server name.
func NewMockTransport(name string) *MockTransport {
	return &MockTransport{name: name, handlers: make(map[string]ToolHandler), reads: make(map[string]string)}
}

// WithTool registers a tool advertisement and its handler, returning the
// receiver for chaining in test setup.
func (m *MockTransport) WithTool(tool Tool, handler ToolHandler) *MockTransport {
	m.tools = append(m.tools, tool)
	m.handlers[tool.Name] = handler
	return m
}

// WithResource registers a readable resource and its fixed content.
func (m *MockTransport) WithResource(resource Resource, content string) *MockTransport {
	m.resources = append(m.resources, resource)
	m.reads[resource.URI] = content
	return m
}

func (m *MockTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockTransport) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) ListTools(context.Context) ([]Tool, error) {
	if !m.isConnected() {
		return nil, errs.McpNotConnected(m.name)
	}
	return append([]Tool(nil), m.tools...), nil
}

func (m *MockTransport) ListResources(context.Context) ([]Resource, error) {
	if !m.isConnected() {
		return nil, errs.McpNotConnected(m.name)
	}
	return append([]Resource(nil), m.resources...), nil
}

func (m *MockTransport) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	if !m.isConnected() {
		return "", errs.McpNotConnected(m.name)
	}
	handler, ok := m.handlers[tool]
	if !ok {
		return "", errs.McpToolNotFound(m.name, tool)
	}
	return handler(ctx, args)
}

func (m *MockTransport) ReadResource(_ context.Context, uri string) (string, error) {
	if !m.isConnected() {
		return "", errs.McpNotConnected(m.name)
	}
	content, ok := m.reads[uri]
	if !ok {
		return "", errs.McpToolError(m.name, uri, "resource not found")
	}
	return content, nil
}

func (m *MockTransport) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}
