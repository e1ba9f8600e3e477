package config

import "time"

// Config carries every tunable the engine reads at run time. Fields are
// grouped by the component that consumes them; see SPEC_FULL.md §A.2 for the
// rationale behind each default.
type Config struct {
	// Runner (C9): workflow-wide and for_each default concurrency.
	MaxConcurrency      int `koanf:"max_concurrency"`
	DefaultForEachLimit int `koanf:"default_for_each_limit"`

	// Executor (C7) verb defaults.
	ShellExecTimeout  time.Duration `koanf:"shell_exec_timeout"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout"`
	FetchMaxRedirects int           `koanf:"fetch_max_redirects"`

	// MCP client (C4).
	McpHandshakeTimeout time.Duration `koanf:"mcp_handshake_timeout"`
	McpCallTimeout      time.Duration `koanf:"mcp_call_timeout"`
	McpShutdownGrace    time.Duration `koanf:"mcp_shutdown_grace"`
	McpCacheTTL         time.Duration `koanf:"mcp_cache_ttl"`
	McpCacheMaxEntries  int           `koanf:"mcp_cache_max_entries"`

	// Resilience wrapper (C6).
	RetryMaxAttempts     int           `koanf:"retry_max_attempts"`
	RetryInitialDelay    time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay        time.Duration `koanf:"retry_max_delay"`
	RetryBackoffFactor   float64       `koanf:"retry_backoff_factor"`
	RetryJitterFraction  float64       `koanf:"retry_jitter_fraction"`
	BreakerFailThreshold int           `koanf:"breaker_fail_threshold"`
	BreakerCooldown      time.Duration `koanf:"breaker_cooldown"`
	RateLimitCapacity    int           `koanf:"rate_limit_capacity"`
	RateLimitRefillPerS  float64       `koanf:"rate_limit_refill_per_second"`

	// Agent loop (C8).
	AgentDefaultMaxTurns int `koanf:"agent_default_max_turns"`
}

// Default returns the engine's baseline configuration, the values a
// DefaultProvider feeds into the merge before env/CLI overlays apply.
func Default() Config {
	return Config{
		MaxConcurrency:      8,
		DefaultForEachLimit: 4,

		ShellExecTimeout:  5 * time.Minute,
		FetchTimeout:      30 * time.Second,
		FetchMaxRedirects: 10,

		McpHandshakeTimeout: 10 * time.Second,
		McpCallTimeout:      60 * time.Second,
		McpShutdownGrace:    5 * time.Second,
		McpCacheTTL:         5 * time.Minute,
		McpCacheMaxEntries:  256,

		RetryMaxAttempts:     3,
		RetryInitialDelay:    200 * time.Millisecond,
		RetryMaxDelay:        10 * time.Second,
		RetryBackoffFactor:   2.0,
		RetryJitterFraction:  0.2,
		BreakerFailThreshold: 5,
		BreakerCooldown:      30 * time.Second,
		RateLimitCapacity:    10,
		RateLimitRefillPerS:  5,

		AgentDefaultMaxTurns: 20,
	}
}
