package mcp

import (
	"context"
	"time"

	"github.com/supernovae-st/nika-sub001/engine/errs"
)

// StaticRegistry implements Registry over a fixed set of already-connected
// mcp.API values (typically MockTransport), for executor/agent-loop tests
// that want C4's call surface without a real subprocess or Pool's
// connect-on-first-use bookkeeping.
type StaticRegistry struct {
	clients map[string]API
	calls   *responseCache
}

// NewStaticRegistry wraps clients, keyed by server name, applying the same
// response-caching behavior Pool does.
func NewStaticRegistry(clients map[string]API) *StaticRegistry {
	return &StaticRegistry{clients: clients, calls: newResponseCache(256, 5*time.Minute)}
}

func (r *StaticRegistry) Get(_ context.Context, name string) (API, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, errs.UnknownMcpServer("static-registry", name)
	}
	return c, nil
}

func (r *StaticRegistry) Tools(ctx context.Context, name string) ([]Tool, error) {
	c, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.ListTools(ctx)
}

func (r *StaticRegistry) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, bool, error) {
	key := toolCacheKey(server, tool, args)
	if v, ok := r.calls.get(key); ok {
		return v, true, nil
	}
	c, err := r.Get(ctx, server)
	if err != nil {
		return "", false, err
	}
	result, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return "", false, err
	}
	r.calls.put(key, result)
	return result, false, nil
}

func (r *StaticRegistry) ReadResource(ctx context.Context, server, uri string) (string, bool, error) {
	key := resourceCacheKey(server, uri)
	if v, ok := r.calls.get(key); ok {
		return v, true, nil
	}
	c, err := r.Get(ctx, server)
	if err != nil {
		return "", false, err
	}
	content, err := c.ReadResource(ctx, uri)
	if err != nil {
		return "", false, err
	}
	r.calls.put(key, content)
	return content, false, nil
}

var _ Registry = (*StaticRegistry)(nil)
