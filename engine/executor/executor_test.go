package executor

import (
	"context"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supernovae-st/nika-sub001/engine/agent"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/mcp"
	"github.com/supernovae-st/nika-sub001/engine/store"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

func newTestExecutor(t *testing.T, mcpRegistry mcp.Registry) (*Executor, *store.Store, *event.Log) {
	t.Helper()
	st := store.New()
	log := event.New()
	if mcpRegistry == nil {
		mcpRegistry = mcp.NewStaticRegistry(nil)
	}
	deps := Deps{
		Store:           st,
		Log:             log,
		Mcp:             mcpRegistry,
		Agent:           agent.New(mcpRegistry, log),
		Providers:       func(context.Context, string, string) (provider.ChatClient, error) { return nil, nil },
		HTTP:            resty.New(),
		DefaultProvider: "mock",
		DefaultModel:    "mock-model",
		ShellTimeout:    5 * time.Second,
		FetchTimeout:    5 * time.Second,
	}
	return New(deps), st, log
}

func TestRun_ExecReturnsTrimmedStdout(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	task := &workflow.Task{ID: "a", Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "echo hello"}}}

	out, err := exec.Run(context.Background(), task, IterScope{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	v, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestRun_ExecNonZeroExitIsExecutionError(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	task := &workflow.Task{ID: "a", Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "exit 3"}}}

	_, err := exec.Run(context.Background(), task, IterScope{})
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errs.KindExecution, ee.Kind)
}

func TestRun_ExecTimeoutIsExecutionError(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	exec.deps.ShellTimeout = 10 * time.Millisecond
	task := &workflow.Task{ID: "a", Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "sleep 1"}}}

	_, err := exec.Run(context.Background(), task, IterScope{})
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "execution.shell_timeout", ee.Code)
}

func TestRun_OutputFormatJSONCoercesExecStdout(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	task := &workflow.Task{
		ID:     "a",
		Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: `echo '{"k":"v"}'`}},
		Output: &workflow.OutputSpec{Format: "json"},
	}

	out, err := exec.Run(context.Background(), task, IterScope{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, out)
	v, _ := st.Get("a")
	assert.Equal(t, map[string]any{"k": "v"}, v)
}

func TestRun_OutputFormatJSONFailsOnInvalidJSON(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	task := &workflow.Task{
		ID:     "a",
		Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "echo not-json"}},
		Output: &workflow.OutputSpec{Format: "json"},
	}

	_, err := exec.Run(context.Background(), task, IterScope{})
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "execution.json_parse_failed", ee.Code)
}

func TestRun_UseBindingResolvesUpstreamTaskOutput(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	st.Insert("upstream", map[string]any{"greeting": "hi there"})

	task := &workflow.Task{
		ID:     "b",
		Action:  workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "echo {{use.g}}"}},
		Use:     map[string]string{"g": "{{use.upstream.greeting}}"},
	}

	out, err := exec.Run(context.Background(), task, IterScope{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestRun_DanglingLocalBindingFails(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	st.Insert("upstream", "value")

	task := &workflow.Task{
		ID:     "b",
		Action: workflow.Action{Kind: workflow.VerbExec, Exec: &workflow.ExecParams{Command: "echo {{use.missing}}"}},
		Use:    map[string]string{"g": "{{use.upstream}}"},
	}

	_, err := exec.Run(context.Background(), task, IterScope{})
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "validation.dangling_binding", ee.Code)
}

func TestRun_InvokeCallsToolThroughRegistry(t *testing.T) {
	transport := mcp.NewMockTransport("fs").WithTool(mcp.Tool{Name: "read"}, func(_ context.Context, args map[string]any) (string, error) {
		return "contents of " + args["path"].(string), nil
	})
	require.NoError(t, transport.Connect(context.Background()))
	registry := mcp.NewStaticRegistry(map[string]mcp.API{"fs": transport})

	exec, st, _ := newTestExecutor(t, registry)
	st.Insert("pick", "a.txt")

	task := &workflow.Task{
		ID: "b",
		Action: workflow.Action{Kind: workflow.VerbInvoke, Invoke: &workflow.InvokeParams{
			Server: "fs", Tool: "read", Params: map[string]any{"path": "{{use.p}}"},
		}},
		Use: map[string]string{"p": "{{use.pick}}"},
	}

	out, err := exec.Run(context.Background(), task, IterScope{})
	require.NoError(t, err)
	assert.Equal(t, "contents of a.txt", out)
}

func TestRun_InvokeRejectsBothToolAndResource(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	task := &workflow.Task{
		ID: "b",
		Action: workflow.Action{Kind: workflow.VerbInvoke, Invoke: &workflow.InvokeParams{
			Server: "fs", Tool: "read", Resource: "file://a",
		}},
	}
	_, err := exec.Run(context.Background(), task, IterScope{})
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "validation.invalid_invoke_params", ee.Code)
}

func TestResolveForEachItems_LiteralList(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	task := &workflow.Task{ID: "a", ForEach: &workflow.ForEach{Items: []any{"x", "y"}, As: "item"}}
	items, err := exec.ResolveForEachItems(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, items)
}

func TestResolveForEachItems_BindingExpression(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	st.Insert("upstream", []any{"a", "b", "c"})
	task := &workflow.Task{ID: "t", ForEach: &workflow.ForEach{Items: "{{use.upstream}}", As: "item"}}
	items, err := exec.ResolveForEachItems(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, items)
}

func TestResolveForEachItems_DecomposeStaticResolvesBoundArray(t *testing.T) {
	exec, st, _ := newTestExecutor(t, nil)
	st.Insert("graph", []any{"n1", "n2", "n3"})
	task := &workflow.Task{ID: "t", ForEach: &workflow.ForEach{
		As: "node",
		Decompose: &workflow.DecomposeSpec{
			Strategy: workflow.DecomposeStatic,
			Source:   "{{use.graph}}",
			MaxItems: 2,
		},
	}}
	items, err := exec.ResolveForEachItems(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []any{"n1", "n2"}, items)
}

func TestResolveForEachItems_DecomposeSemanticCallsTraversalTool(t *testing.T) {
	transport := mcp.NewMockTransport("graphsrv").WithTool(mcp.Tool{Name: "novanet_traverse"},
		func(_ context.Context, args map[string]any) (string, error) {
			assert.Equal(t, "root", args["start"])
			assert.Equal(t, "contains", args["arc"])
			return `{"nodes": ["a", "b", "c"]}`, nil
		})
	registry := mcp.NewStaticRegistry(map[string]mcp.API{"graphsrv": transport})
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	exec, _, _ := newTestExecutor(t, registry)
	task := &workflow.Task{ID: "t", ForEach: &workflow.ForEach{
		As: "node",
		Decompose: &workflow.DecomposeSpec{
			Strategy:  workflow.DecomposeSemantic,
			Source:    "root",
			Traverse:  "contains",
			McpServer: "graphsrv",
		},
	}}
	items, err := exec.ResolveForEachItems(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, items)
}

func TestResolveForEachItems_DecomposeNestedIsUnimplemented(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	task := &workflow.Task{ID: "t", ForEach: &workflow.ForEach{
		As:        "node",
		Decompose: &workflow.DecomposeSpec{Strategy: workflow.DecomposeNested, Source: "root"},
	}}
	_, err := exec.ResolveForEachItems(context.Background(), task)
	require.Error(t, err)
	var ee *errs.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "validation.decompose_nested_unimplemented", ee.Code)
}
