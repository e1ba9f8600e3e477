package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_CallToolInvokesHandler(t *testing.T) {
	m := NewMockTransport("fs").WithTool(Tool{Name: "read"}, func(_ context.Context, args map[string]any) (string, error) {
		return "contents of " + args["path"].(string), nil
	})
	require.NoError(t, m.Connect(context.Background()))
	out, err := m.CallTool(context.Background(), "read", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "contents of a.txt", out)
}

func TestMockTransport_CallToolBeforeConnectFails(t *testing.T) {
	m := NewMockTransport("fs").WithTool(Tool{Name: "read"}, func(context.Context, map[string]any) (string, error) { return "", nil })
	_, err := m.CallTool(context.Background(), "read", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_connected")
}

func TestMockTransport_UnknownToolFails(t *testing.T) {
	m := NewMockTransport("fs")
	require.NoError(t, m.Connect(context.Background()))
	_, err := m.CallTool(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool_not_found")
}

func TestMockTransport_ReadResourceReturnsFixedContent(t *testing.T) {
	m := NewMockTransport("fs").WithResource(Resource{URI: "file://a"}, "hello")
	require.NoError(t, m.Connect(context.Background()))
	out, err := m.ReadResource(context.Background(), "file://a")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestMockTransport_ListToolsReturnsRegistered(t *testing.T) {
	m := NewMockTransport("fs").
		WithTool(Tool{Name: "a"}, nil).
		WithTool(Tool{Name: "b"}, nil)
	require.NoError(t, m.Connect(context.Background()))
	tools, err := m.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}
