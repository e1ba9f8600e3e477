// Package registry implements the provider side of the engine's
// concurrent get-or-init requirement (nika spec §5 "Shared resources" and
// §9 design note "Concurrent get-or-init for providers and MCP clients"):
// N racing callers asking for the same (provider, model) pair observe
// exactly one construction and share the resulting resilience-wrapped
// client.
package registry

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/llm/resilience"
)

// Builder constructs the underlying ChatClient for a resolved provider
// config; production code passes a func wrapping provider.New, tests pass
// one returning a provider.ScriptedClient.
type Builder func(cfg provider.Config) (provider.ChatClient, error)

// Registry caches one resilience-wrapped ChatClient per key (typically
// "provider:model"), building lazily on first use.
type Registry struct {
	build      Builder
	resilience resilience.Config

	mu      sync.Mutex
	clients map[string]*WrappedClient
	group   singleflight.Group
}

// New creates a Registry that builds clients with build and wraps every
// call with a resilience.Wrapper configured by cfg.
func New(build Builder, cfg resilience.Config) *Registry {
	return &Registry{build: build, resilience: cfg, clients: make(map[string]*WrappedClient)}
}

// GetOrInit returns the WrappedClient for key, building it via pcfg on a
// miss. Concurrent callers racing on the same key share one construction
// and receive the same *WrappedClient instance (spec §5/§8 property 3).
func (r *Registry) GetOrInit(_ context.Context, key string, pcfg provider.Config) (*WrappedClient, error) {
	r.mu.Lock()
	if c, ok := r.clients[key]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		inner, err := r.build(pcfg)
		if err != nil {
			return nil, err
		}
		wrapped := &WrappedClient{inner: inner, wrapper: resilience.New("provider:"+key, r.resilience)}
		r.mu.Lock()
		r.clients[key] = wrapped
		r.mu.Unlock()
		return wrapped, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WrappedClient), nil
}

// WrappedClient is a provider.ChatClient whose Infer/Chat calls pass
// through a resilience.Wrapper (rate limit, retry, circuit breaker), per
// spec §4.6. It classifies each call's error as transient or not before
// handing it to the wrapper, since only transient failures should be
// retried (spec §4.6 step 2).
type WrappedClient struct {
	inner   provider.ChatClient
	wrapper *resilience.Wrapper
}

var _ provider.ChatClient = (*WrappedClient)(nil)

func (w *WrappedClient) Model() string { return w.inner.Model() }

func (w *WrappedClient) Infer(ctx context.Context, prompt string) (*provider.ChatResponse, error) {
	var resp *provider.ChatResponse
	err := w.wrapper.Do(ctx, func(ctx context.Context) error {
		r, err := w.inner.Infer(ctx, prompt)
		if err != nil {
			return classify(err)
		}
		resp = r
		return nil
	})
	return resp, err
}

func (w *WrappedClient) Chat(ctx context.Context, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
	var resp *provider.ChatResponse
	err := w.wrapper.Do(ctx, func(ctx context.Context) error {
		r, err := w.inner.Chat(ctx, messages, tools)
		if err != nil {
			return classify(err)
		}
		resp = r
		return nil
	})
	return resp, err
}

// transientMarkers are substrings seen in network/5xx/rate-limit failures
// across langchaingo's backends. A provider error matching one of these is
// worth retrying; anything else (auth failures, malformed requests, 4xx
// client errors) surfaces immediately per spec §4.6 step 2.
var transientMarkers = []string{
	"connection reset", "connection refused", "timeout", "timed out",
	"eof", "broken pipe", "temporary failure", "rate limit", "429",
	"500", "502", "503", "504",
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return resilience.MarkRetryable(err)
		}
	}
	return err
}
