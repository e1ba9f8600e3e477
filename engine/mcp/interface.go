package mcp

import "context"

// API is the surface the task executor (C7) and agent loop (C8) need from
// an MCP connection. *Client and *MockTransport both satisfy it, so tests
// can substitute MockTransport without a real subprocess.
type API interface {
	ListTools(ctx context.Context) ([]Tool, error)
	ListResources(ctx context.Context) ([]Resource, error)
	CallTool(ctx context.Context, tool string, args map[string]any) (string, error)
	ReadResource(ctx context.Context, uri string) (string, error)
}

var (
	_ API = (*Client)(nil)
	_ API = (*MockTransport)(nil)
)
