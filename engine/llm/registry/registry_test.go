package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/llm/resilience"
)

func testResilienceConfig() resilience.Config {
	return resilience.Config{
		MaxAttempts:     3,
		RetryDelayStart: time.Millisecond,
		RetryDelayMax:   5 * time.Millisecond,
	}
}

func TestGetOrInit_ConcurrentCallersShareOneClient(t *testing.T) {
	var mu sync.Mutex
	builds := 0
	build := func(cfg provider.Config) (provider.ChatClient, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		return provider.NewScriptedClient(cfg.Model, &provider.ChatResponse{
			Message:    provider.Message{Role: provider.RoleAssistant, Content: "ok"},
			StopReason: provider.StopEndTurn,
		}), nil
	}
	r := New(build, testResilienceConfig())

	const n = 20
	results := make([]*WrappedClient, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.GetOrInit(context.Background(), "openai:gpt", provider.Config{Model: "gpt"})
			require.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, builds)
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
}

func TestGetOrInit_DistinctKeysBuildDistinctClients(t *testing.T) {
	build := func(cfg provider.Config) (provider.ChatClient, error) {
		return provider.NewScriptedClient(cfg.Model), nil
	}
	r := New(build, testResilienceConfig())

	a, err := r.GetOrInit(context.Background(), "openai:gpt-4", provider.Config{Model: "gpt-4"})
	require.NoError(t, err)
	b, err := r.GetOrInit(context.Background(), "openai:gpt-5", provider.Config{Model: "gpt-5"})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestWrappedClient_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	calls := 0
	build := func(cfg provider.Config) (provider.ChatClient, error) {
		return fakeFlakyClient{fn: func() (*provider.ChatResponse, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("connection reset by peer")
			}
			return &provider.ChatResponse{Message: provider.Message{Content: "ok"}, StopReason: provider.StopEndTurn}, nil
		}}, nil
	}
	r := New(build, testResilienceConfig())
	c, err := r.GetOrInit(context.Background(), "k", provider.Config{})
	require.NoError(t, err)

	resp, err := c.Infer(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, 2, calls)
}

func TestWrappedClient_DoesNotRetryNonTransientErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("invalid api key")
	build := func(cfg provider.Config) (provider.ChatClient, error) {
		return fakeFlakyClient{fn: func() (*provider.ChatResponse, error) {
			calls++
			return nil, sentinel
		}}, nil
	}
	r := New(build, testResilienceConfig())
	c, err := r.GetOrInit(context.Background(), "k", provider.Config{})
	require.NoError(t, err)

	_, err = c.Infer(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWrappedClient_CircuitBreakerTripsAfterExactlyNConsecutiveFailures(t *testing.T) {
	always := provider.NewAlwaysFailingClient("mock", errors.New("503 service unavailable"))
	build := func(cfg provider.Config) (provider.ChatClient, error) { return always, nil }
	cfg := resilience.Config{
		MaxAttempts:             1,
		RetryDelayStart:         time.Millisecond,
		RetryDelayMax:           time.Hour,
		BreakerSuccessiveErrors: 3,
	}
	r := New(build, cfg)
	c, err := r.GetOrInit(context.Background(), "k", provider.Config{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Infer(context.Background(), "hi")
		require.Error(t, err, "call %d should still invoke the provider and fail", i+1)
	}
	require.Equal(t, 3, always.Calls())

	_, err = c.Infer(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit_open")
	assert.Equal(t, 3, always.Calls(), "4th call must short-circuit without invoking the provider")
}

// fakeFlakyClient is a minimal provider.ChatClient whose Chat delegates to
// fn, used to script an error sequence registry_test.go can't express with
// ScriptedClient's fixed response list alone.
type fakeFlakyClient struct {
	fn func() (*provider.ChatResponse, error)
}

func (f fakeFlakyClient) Model() string { return "fake" }
func (f fakeFlakyClient) Infer(context.Context, string) (*provider.ChatResponse, error) {
	return f.fn()
}
func (f fakeFlakyClient) Chat(context.Context, []provider.Message, []provider.ToolSpec) (*provider.ChatResponse, error) {
	return f.fn()
}
