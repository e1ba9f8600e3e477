package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

// toolCacheTTL bounds how long a server's advertised tool list is trusted
// before ListTools is called again (spec §4.4: tool lists rarely change
// within a single run, so the pool caches them per server).
const toolCacheTTL = 5 * time.Minute

// Registry is what the task executor (C7) and agent loop (C8) need from
// whatever owns MCP connections: resolve a named server to its API, and
// list its tools. Pool implements it for production use;
// NewStaticRegistry implements it over pre-built mcp.API values (including
// MockTransport) for tests that don't want a real subprocess.
type Registry interface {
	Get(ctx context.Context, name string) (API, error)
	Tools(ctx context.Context, name string) ([]Tool, error)
	CallTool(ctx context.Context, server, tool string, args map[string]any) (result string, cached bool, err error)
	ReadResource(ctx context.Context, server, uri string) (content string, cached bool, err error)
}

var _ Registry = (*Pool)(nil)

// Pool owns one Client per declared MCP server, created lazily on first use
// and shared by every task/agent turn that references it. Concurrent
// first-uses of the same server are coalesced via singleflight so only one
// subprocess is ever started per server name. It also holds the response
// cache spec §4.3 describes: identical tool/resource calls within TTL are
// served without reaching the subprocess.
type Pool struct {
	mu      sync.Mutex
	specs   map[string]workflow.McpServerSpec
	clients map[string]*Client
	group   singleflight.Group
	tools   *expirable.LRU[string, []Tool]
	calls   *responseCache
}

// NewPool creates a Pool over the workflow's declared mcp servers, caching
// tool/resource responses for cacheTTL (5 minutes, capped at cacheMax
// entries, if either is <= 0).
func NewPool(servers map[string]workflow.McpServerSpec, cacheTTL time.Duration, cacheMax int) *Pool {
	return &Pool{
		specs:   servers,
		clients: make(map[string]*Client),
		tools:   expirable.NewLRU[string, []Tool](64, nil, toolCacheTTL),
		calls:   newResponseCache(cacheMax, cacheTTL),
	}
}

// Get returns the connected Client for name, connecting it on first use,
// satisfying Registry. Concurrent callers requesting the same name share
// one connection attempt.
func (p *Pool) Get(ctx context.Context, name string) (API, error) {
	return p.getClient(ctx, name)
}

// getClient is Get's concrete-typed twin, used internally where Tools and
// Shutdown need the real *Client (to call ListTools/Disconnect directly).
func (p *Pool) getClient(ctx context.Context, name string) (*Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[name]; ok {
		p.mu.Unlock()
		return c, nil
	}
	spec, ok := p.specs[name]
	p.mu.Unlock()
	if !ok {
		return nil, errs.UnknownMcpServer("pool", name)
	}

	v, err, _ := p.group.Do(name, func() (any, error) {
		c := New(name, spec)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.clients[name] = c
		p.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// Tools returns the cached tool list for server name, fetching and caching
// it on a miss.
func (p *Pool) Tools(ctx context.Context, name string) ([]Tool, error) {
	if cached, ok := p.tools.Get(name); ok {
		return cached, nil
	}
	c, err := p.getClient(ctx, name)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("tools:%s", name)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return c.ListTools(ctx)
	})
	if err != nil {
		return nil, err
	}
	tools := v.([]Tool)
	p.tools.Add(name, tools)
	return tools, nil
}

// CallTool calls tool on server, serving an identical prior call from the
// response cache within TTL instead of reaching the subprocess again. The
// second return value is true exactly on a cache hit (spec §4.3/§4.4).
func (p *Pool) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, bool, error) {
	key := toolCacheKey(server, tool, args)
	if v, ok := p.calls.get(key); ok {
		return v, true, nil
	}
	c, err := p.getClient(ctx, server)
	if err != nil {
		return "", false, err
	}
	result, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return "", false, err
	}
	p.calls.put(key, result)
	return result, false, nil
}

// ReadResource reads uri on server, with the same caching behavior as
// CallTool.
func (p *Pool) ReadResource(ctx context.Context, server, uri string) (string, bool, error) {
	key := resourceCacheKey(server, uri)
	if v, ok := p.calls.get(key); ok {
		return v, true, nil
	}
	c, err := p.getClient(ctx, server)
	if err != nil {
		return "", false, err
	}
	content, err := c.ReadResource(ctx, uri)
	if err != nil {
		return "", false, err
	}
	p.calls.put(key, content)
	return content, false, nil
}

// Shutdown disconnects every open client, giving each gracePeriod to exit
// cleanly (spec §4.4). Errors from individual clients are collected but do
// not stop the sweep.
func (p *Pool) Shutdown(ctx context.Context, gracePeriod time.Duration) error {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Disconnect(ctx, gracePeriod); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
