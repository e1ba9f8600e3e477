package nika

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
	"github.com/supernovae-st/nika-sub001/pkg/config"
)

func TestRun_ExecAndInferWorkflowEndToEnd(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, nil, nil)

	doc := &workflow.Document{
		Provider: string(provider.Mock),
		Model:    "mock-model",
		Tasks: []workflow.Task{
			{ID: "greet", Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "echo hello"}}},
			{
				ID:       "respond",
				Action:   workflow.Action{Kind: workflow.VerbInfer, Infer: &workflow.InferParams{Prompt: "say {{use.g}}"}},
				Use:      map[string]string{"g": "{{use.greet}}"},
				IsOutput: true,
			},
		},
	}

	res, log, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.False(t, res.Failed)
	assert.Equal(t, "mock response for: say hello", res.FinalOutput)
	assert.Equal(t, 1, res.Usage.CallCount)
}

func TestRun_CredentialsFlowIntoProviderConfig(t *testing.T) {
	cfg := config.Default()
	var seenKey, seenURL, seenOrg string
	creds := func(provider.Name) (string, string, string) {
		seenKey, seenURL, seenOrg = "k", "u", "o"
		return seenKey, seenURL, seenOrg
	}
	e := New(cfg, creds, nil)

	doc := &workflow.Document{
		Provider: string(provider.Mock),
		Model:    "mock-model",
		Tasks: []workflow.Task{
			{ID: "only", Action: workflow.Action{Kind: workflow.VerbInfer, Infer: &workflow.InferParams{Prompt: "hi"}}},
		},
	}

	_, _, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "k", seenKey)
	assert.Equal(t, "u", seenURL)
	assert.Equal(t, "o", seenOrg)
}

func TestRun_FailedTaskSurfacesInResultWithoutEngineError(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, nil, nil)

	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "bad", Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "exit 1"}}},
		},
	}

	res, _, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Failures, "bad")
}

func TestNewFromEnv_DefaultsWithoutOverride(t *testing.T) {
	e, err := NewFromEnv(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default().MaxConcurrency, e.cfg.MaxConcurrency)
}
