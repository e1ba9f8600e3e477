package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsOnly(t *testing.T) {
	mgr := &Manager{}
	err := Initialize(context.Background(), mgr, NewDefaultProvider(Default()))
	require.NoError(t, err)
	cfg := mgr.Get()
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.ShellExecTimeout)
}

func TestInitialize_EnvOverridesDefault(t *testing.T) {
	t.Setenv("NIKA_MAX_CONCURRENCY", "32")
	mgr := &Manager{}
	err := Initialize(context.Background(), mgr, NewDefaultProvider(Default()), NewEnvProvider())
	require.NoError(t, err)
	assert.Equal(t, 32, mgr.Get().MaxConcurrency)
}

func TestInitialize_CLIOverridesEnvAndDefault(t *testing.T) {
	t.Setenv("NIKA_MAX_CONCURRENCY", "32")
	mgr := &Manager{}
	cli := NewCLIProvider(map[string]any{"max_concurrency": 64})
	err := Initialize(context.Background(), mgr, NewDefaultProvider(Default()), NewEnvProvider(), cli)
	require.NoError(t, err)
	assert.Equal(t, 64, mgr.Get().MaxConcurrency)
}

func TestGet_ReturnsCopyNotReference(t *testing.T) {
	mgr := &Manager{cfg: Default()}
	a := mgr.Get()
	a.MaxConcurrency = 999
	assert.NotEqual(t, 999, mgr.Get().MaxConcurrency)
}
