package config

import (
	"context"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
)

// DefaultProvider seeds the baseline Config values via koanf's structs
// provider, reflecting over the `koanf` struct tags set in Default().
type DefaultProvider struct {
	base Config
}

func NewDefaultProvider(base Config) *DefaultProvider {
	return &DefaultProvider{base: base}
}

func (p *DefaultProvider) Load() (map[string]any, error) {
	k := structs.Provider(p.base, "koanf")
	return k.Read()
}

func (p *DefaultProvider) Type() SourceType { return SourceTypeDefault }

func (p *DefaultProvider) Watch(context.Context, func()) error { return nil }

// EnvProvider overlays NIKA_-prefixed environment variables, lower-cased and
// with underscores standing in for the nesting koanf expects
// (NIKA_RETRY_MAX_ATTEMPTS -> retry_max_attempts).
type EnvProvider struct {
	prefix string
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{prefix: "NIKA_"}
}

func (p *EnvProvider) Load() (map[string]any, error) {
	// Best-effort: a .env file is convenient for local runs but never
	// required, so a missing file is not an error (godotenv.Load already
	// ignores os.IsNotExist; this also swallows any other read failure
	// rather than let a stray .env block startup).
	_ = godotenv.Load()

	e := env.Provider(".", env.Opt{
		Prefix: p.prefix,
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, p.prefix))
			return key, v
		},
	})
	return e.Read()
}

func (p *EnvProvider) Type() SourceType { return SourceTypeEnv }

// Watch is a no-op: process environment variables do not change after
// startup in this engine's embedding model.
func (p *EnvProvider) Watch(context.Context, func()) error { return nil }

// CLIProvider overlays a map of already-parsed flags from an embedding CLI
// front-end (out of scope per spec.md §1; the engine only consumes the map).
type CLIProvider struct {
	flags map[string]any
}

func NewCLIProvider(flags map[string]any) *CLIProvider {
	return &CLIProvider{flags: flags}
}

func (p *CLIProvider) Load() (map[string]any, error) {
	if p.flags == nil {
		return map[string]any{}, nil
	}
	return p.flags, nil
}

func (p *CLIProvider) Type() SourceType { return SourceTypeCLI }

func (p *CLIProvider) Watch(context.Context, func()) error { return nil }
