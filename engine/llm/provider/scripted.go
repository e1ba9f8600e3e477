package provider

import (
	"context"
	"errors"
	"sync"
)

// ChatClient is the surface the task executor (C7) and agent loop (C8)
// consume from a provider backend. *Client satisfies it via langchaingo;
// ScriptedClient satisfies it for deterministic tests (spec §4.5: "Backends
// include at minimum a production LLM client and a deterministic mock used
// in tests").
type ChatClient interface {
	Model() string
	Infer(ctx context.Context, prompt string) (*ChatResponse, error)
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*ChatResponse, error)
}

var (
	_ ChatClient = (*Client)(nil)
	_ ChatClient = (*ScriptedClient)(nil)
)

// ScriptedClient replays a fixed sequence of ChatResponses, one per Chat
// call, repeating the last entry once the script runs out. In AlwaysFail
// mode (built by NewAlwaysFailingClient) every call returns the configured
// error instead, for resilience-wrapper tests that need an upstream that
// never recovers.
type ScriptedClient struct {
	model string

	mu        sync.Mutex
	turn      int
	responses []*ChatResponse
	err       error
	calls     int
}

// NewScriptedClient builds a ScriptedClient that returns responses in
// order, holding on the last one if Chat is called more times than there
// are responses.
func NewScriptedClient(model string, responses ...*ChatResponse) *ScriptedClient {
	return &ScriptedClient{model: model, responses: responses}
}

// NewAlwaysFailingClient builds a ScriptedClient whose every call fails
// with err.
func NewAlwaysFailingClient(model string, err error) *ScriptedClient {
	return &ScriptedClient{model: model, err: err}
}

func (c *ScriptedClient) Model() string { return c.model }

// Calls reports how many times Chat has been invoked, for tests asserting
// a circuit breaker short-circuited without reaching the provider.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *ScriptedClient) Infer(ctx context.Context, prompt string) (*ChatResponse, error) {
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, nil)
}

func (c *ScriptedClient) Chat(_ context.Context, _ []Message, _ []ToolSpec) (*ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, errors.New("scripted client: no responses configured")
	}
	idx := c.turn
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	resp := c.responses[idx]
	c.turn++
	return resp, nil
}
