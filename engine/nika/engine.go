// Package nika is the engine's library entry point: it wires the data
// store, event log, MCP pool, provider registry, task executor, agent
// loop, and DAG runner (C1-C11) behind a single Run call, since spec.md
// describes each component but not how a host process assembles them.
// There is no CLI here — the engine is consumed as a Go library.
package nika

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/supernovae-st/nika-sub001/engine/agent"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/executor"
	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/llm/registry"
	"github.com/supernovae-st/nika-sub001/engine/llm/resilience"
	"github.com/supernovae-st/nika-sub001/engine/mcp"
	"github.com/supernovae-st/nika-sub001/engine/runner"
	"github.com/supernovae-st/nika-sub001/engine/store"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
	"github.com/supernovae-st/nika-sub001/pkg/config"
	"github.com/supernovae-st/nika-sub001/pkg/logger"
)

// Result is the outcome of one workflow run: the runner's per-task results
// plus the run-level cost/usage rollup spec §6 asks the engine to expose.
type Result struct {
	GenerationID string
	FinalOutput  any
	TaskResults  map[string]any
	Failures     map[string]*errs.Error
	Failed       bool
	Usage        Usage
}

// Usage sums every provider call's accounting fields across the run (spec
// §4.4/§4.7 define the per-call usage; this is the engine-level rollup).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ThinkingTokens   int
	TotalCostUSD     float64
	CallCount        int
}

// ProviderCredentials resolves a backend name to its API key/URL/org, kept
// out of workflow.Document since a document is otherwise a plain,
// credential-free value (spec.md §1: parsing/secrets are a host concern).
type ProviderCredentials func(name provider.Name) (apiKey, apiURL, org string)

// Engine is a reusable, concurrency-safe entry point: construct one per
// host process (it owns the MCP pool and provider registry across runs)
// and call Run once per workflow document.
type Engine struct {
	cfg   config.Config
	creds ProviderCredentials
	log   logger.Logger

	providers *registry.Registry
	http      *resty.Client
}

// NewFromEnv layers process environment variables over config.Default()
// via the engine's config.Manager (defaults, then NIKA_*-prefixed env
// vars) and constructs an Engine from the result — the no-host-CLI
// equivalent of the teacher's config bootstrap.
func NewFromEnv(ctx context.Context, creds ProviderCredentials, log logger.Logger) (*Engine, error) {
	mgr := &config.Manager{}
	if err := config.Initialize(ctx, mgr, config.NewDefaultProvider(config.Default()), config.NewEnvProvider()); err != nil {
		return nil, err
	}
	return New(mgr.Get(), creds, log), nil
}

// New creates an Engine. creds may be nil, in which case every provider
// config is built with empty credentials (useful for the mock backend in
// tests).
func New(cfg config.Config, creds ProviderCredentials, log logger.Logger) *Engine {
	if creds == nil {
		creds = func(provider.Name) (string, string, string) { return "", "", "" }
	}
	if log == nil {
		log = logger.New(logger.Config{})
	}
	logger.SetDefault(log)
	rcfg := resilience.Config{
		RateLimitPerSecond:           cfg.RateLimitRefillPerS,
		RateLimitBurst:               cfg.RateLimitCapacity,
		MaxAttempts:                  uint64(cfg.RetryMaxAttempts),
		RetryDelayStart:              cfg.RetryInitialDelay,
		RetryDelayMax:                cfg.RetryMaxDelay,
		BreakerErrorPercentThreshold: 50,
		BreakerMinimumRequests:       cfg.BreakerFailThreshold,
		BreakerSuccessiveErrors:      cfg.BreakerFailThreshold,
	}
	e := &Engine{
		cfg:   cfg,
		creds: creds,
		log:   log,
		http:  resty.New().SetTimeout(cfg.FetchTimeout).SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.FetchMaxRedirects)),
	}
	e.providers = registry.New(func(pcfg provider.Config) (provider.ChatClient, error) {
		return provider.New(pcfg)
	}, rcfg)
	return e
}

// Run validates and executes doc end to end: every event the run produces
// is available on the returned *event.Log as it happens (subscribe before
// calling Run, or call Events() after it returns for the full sequence).
func (e *Engine) Run(ctx context.Context, doc *workflow.Document) (*Result, *event.Log, error) {
	ctx = logger.ContextWithLogger(ctx, e.log)
	log := event.New()
	st := store.New()

	pool := mcp.NewPool(doc.Mcp, e.cfg.McpCacheTTL, e.cfg.McpCacheMaxEntries)
	defer func() {
		if err := pool.Shutdown(context.Background(), e.cfg.McpShutdownGrace); err != nil {
			e.log.Warn("mcp pool shutdown", "error", err)
		}
	}()

	loop := agent.New(pool, log)

	providerFactory := e.buildProviderFactory(doc)

	exec := executor.New(executor.Deps{
		Store:             st,
		Log:               log,
		Mcp:               pool,
		Agent:             loop,
		Providers:         providerFactory,
		HTTP:              e.http,
		DefaultProvider:   doc.Provider,
		DefaultModel:      doc.Model,
		ShellTimeout:      e.cfg.ShellExecTimeout,
		FetchTimeout:      e.cfg.FetchTimeout,
		FetchMaxRedirects: e.cfg.FetchMaxRedirects,
	})

	maxConcurrency := doc.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = e.cfg.MaxConcurrency
	}
	run := runner.New(doc, exec, log, st, maxConcurrency, e.cfg.DefaultForEachLimit)

	res, err := run.Run(ctx)
	if err != nil {
		return nil, log, err
	}

	return &Result{
		GenerationID: res.GenerationID,
		FinalOutput:  res.FinalOutput,
		TaskResults:  res.TaskResults,
		Failures:     res.Failures,
		Failed:       res.Failed,
		Usage:        rollupUsage(log),
	}, log, nil
}

// buildProviderFactory closes over doc so a (provider, model) pair resolves
// to credentials once per document, then delegates to the shared
// registry's get-or-init so every task/agent turn in this run — and any
// concurrent run sharing this Engine — reuses one resilience-wrapped
// client per pair (spec §5/§9).
func (e *Engine) buildProviderFactory(doc *workflow.Document) executor.ProviderFactory {
	return func(ctx context.Context, providerName, model string) (provider.ChatClient, error) {
		name := provider.Name(providerName)
		if name == "" {
			name = provider.Name(doc.Provider)
		}
		apiKey, apiURL, org := e.creds(name)
		pcfg := provider.Config{
			Provider:     name,
			Model:        model,
			APIKey:       apiKey,
			APIURL:       apiURL,
			Organization: org,
		}
		key := string(name) + ":" + model
		return e.providers.GetOrInit(ctx, key, pcfg)
	}
}

func rollupUsage(log *event.Log) Usage {
	var u Usage
	for _, ev := range log.Events() {
		if ev.Kind != event.KindProviderResponded {
			continue
		}
		u.CallCount++
		if v, ok := ev.Data["input_tokens"].(int); ok {
			u.PromptTokens += v
		}
		if v, ok := ev.Data["output_tokens"].(int); ok {
			u.CompletionTokens += v
		}
		if v, ok := ev.Data["thinking_tokens"].(int); ok {
			u.ThinkingTokens += v
		}
		if v, ok := ev.Data["cost_usd"].(float64); ok {
			u.TotalCostUSD += v
		}
	}
	return u
}
