// Package config is a layered configuration system for the engine: a
// DefaultProvider seeds baseline values, an EnvProvider overlays NIKA_-
// prefixed environment variables, and an optional CLIProvider overlays
// already-parsed flags from an embedding front-end. Sources are merged in
// precedence order by koanf into a single Config struct.
package config

import (
	"context"
)

// SourceType identifies where a Source's values originated, surfaced mostly
// for diagnostics when two sources disagree.
type SourceType string

const (
	SourceTypeDefault SourceType = "default"
	SourceTypeEnv     SourceType = "env"
	SourceTypeCLI     SourceType = "cli"
)

// Source supplies one layer of configuration. Load is called once during
// Initialize; Watch is only meaningful for sources that can change at
// runtime (the env source re-reads periodically in production, no-ops in
// tests).
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
	Watch(ctx context.Context, onChange func()) error
}
