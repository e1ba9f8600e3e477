// Package mcp implements the engine's MCP client (nika spec §4.4, component
// C4): one stdio subprocess per declared server, speaking the Model Context
// Protocol via mark3labs/mcp-go, with a response cache and connect/disconnect
// lifecycle management.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

// Tool is a server-advertised tool, trimmed to what the agent loop and task
// executor need to present to a model or validate arguments against.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Resource is a server-advertised readable resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// Client wraps one MCP server subprocess. It is safe for concurrent use;
// Connect/Disconnect are idempotent.
type Client struct {
	name string
	spec workflow.McpServerSpec

	mu        sync.Mutex
	raw       *mcpgo.Client
	connected bool
}

// New creates a Client bound to name/spec but does not start the subprocess
// — call Connect before issuing tool or resource calls.
func New(name string, spec workflow.McpServerSpec) *Client {
	return &Client{name: name, spec: spec}
}

// Connect starts the subprocess and performs the MCP initialize handshake.
// Calling Connect on an already-connected Client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	env := make([]string, 0, len(c.spec.Env))
	for k, v := range c.spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	raw, err := mcpgo.NewStdioMCPClient(c.spec.Command, env, c.spec.Args...)
	if err != nil {
		return errs.McpSubprocessTerminated(c.name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "nika", Version: "v0"}
	if _, err := raw.Initialize(ctx, initReq); err != nil {
		_ = raw.Close()
		return errs.McpSubprocessTerminated(c.name, err)
	}

	c.raw = raw
	c.connected = true
	return nil
}

// Disconnect closes the subprocess. Calling Disconnect when not connected is
// a no-op. The underlying transport is given gracePeriod to exit cleanly
// before the process is killed (spec §4.4 shutdown sequence); mcp-go's
// stdio transport owns the actual signal/kill timing, so gracePeriod is
// accepted for interface symmetry with the pool's shutdown sweep.
func (c *Client) Disconnect(_ context.Context, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	err := c.raw.Close()
	c.connected = false
	c.raw = nil
	return err
}

func (c *Client) requireConnected() (*mcpgo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, errs.McpNotConnected(c.name)
	}
	return c.raw, nil
}

// ListTools returns every tool the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	res, err := raw.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errs.McpSubprocessTerminated(c.name, err)
	}
	out := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, Tool{Name: t.Name, Description: t.Description, InputSchema: schemaToMap(t.InputSchema)})
	}
	return out, nil
}

// ListResources returns every resource the server advertises.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	raw, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	res, err := raw.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, errs.McpSubprocessTerminated(c.name, err)
	}
	out := make([]Resource, 0, len(res.Resources))
	for _, r := range res.Resources {
		out = append(out, Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType})
	}
	return out, nil
}

// CallTool invokes tool with args and returns its text content concatenated,
// or an error if the server reports IsError or the call itself fails.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	raw, err := c.requireConnected()
	if err != nil {
		return "", err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := raw.CallTool(ctx, req)
	if err != nil {
		return "", errs.McpToolError(c.name, tool, err.Error())
	}
	if res.IsError {
		return "", errs.McpToolError(c.name, tool, contentText(res.Content))
	}
	return contentText(res.Content), nil
}

// ReadResource reads uri and returns its concatenated text content.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	raw, err := c.requireConnected()
	if err != nil {
		return "", err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := raw.ReadResource(ctx, req)
	if err != nil {
		return "", errs.McpToolError(c.name, uri, err.Error())
	}
	var sb []byte
	for _, content := range res.Contents {
		if tc, ok := content.(mcp.TextResourceContents); ok {
			sb = append(sb, []byte(tc.Text)...)
		}
	}
	return string(sb), nil
}

func contentText(content []mcp.Content) string {
	var out string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil
	}
	return map[string]any{"raw": string(b)}
}
