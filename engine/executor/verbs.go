package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/supernovae-st/nika-sub001/engine/agent"
	"github.com/supernovae-st/nika-sub001/engine/core"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
	"github.com/supernovae-st/nika-sub001/pkg/logger"
	"github.com/supernovae-st/nika-sub001/pkg/tplengine"
)

// runInfer is the `infer` verb (spec §4.6 "infer"): select a provider and
// model, call the provider's single-shot Infer, and return the text.
func (e *Executor) runInfer(ctx context.Context, t *workflow.Task, local tplengine.Resolver) (any, error) {
	p := t.Action.Infer
	prompt, resolutions, err := tplengine.Resolve(p.Prompt, local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, resolutions)

	providerName := firstNonEmpty(p.Provider, e.deps.DefaultProvider)
	model := firstNonEmpty(p.Model, e.deps.DefaultModel)

	client, err := e.deps.Providers(ctx, providerName, model)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "provider.unavailable", "check the provider name and credentials", err)
	}

	e.deps.Log.Emit(event.KindProviderCalled, map[string]any{
		"task_id": t.ID, "provider": providerName, "model": model,
	})
	resp, err := client.Infer(ctx, prompt)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "provider.call_failed", "inspect the provider's transport error", err)
	}
	e.deps.Log.Emit(event.KindProviderResponded, map[string]any{
		"task_id": t.ID, "provider": providerName, "model": model,
		"input_tokens": resp.Usage.PromptTokens, "output_tokens": resp.Usage.CompletionTokens,
		"cost_usd": resp.Usage.CostUSD,
	})
	return resp.Message.Content, nil
}

// runExec is the `exec` verb (spec §4.6 "exec" and §6 "Shell exec"): run
// the command through `sh -c` with a hard timeout, returning trimmed
// stdout (or, on failure, an execution error carrying stderr).
func (e *Executor) runExec(ctx context.Context, t *workflow.Task, local tplengine.Resolver) (any, error) {
	p := t.Action.Exec
	command, resolutions, err := tplengine.Resolve(p.Command, local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, resolutions)

	execCtx, cancel := context.WithTimeout(ctx, e.deps.ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if execCtx.Err() != nil {
		return nil, errs.ExecTimeout(t.ID)
	}
	if runErr != nil {
		code := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return nil, errs.ExecNonZeroExit(t.ID, code, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runFetch is the `fetch` verb (spec §4.6 "fetch" and §6 "HTTP fetch"):
// issue the request over the engine's shared, pooled HTTP client.
func (e *Executor) runFetch(ctx context.Context, t *workflow.Task, local tplengine.Resolver) (any, error) {
	p := t.Action.Fetch
	url, urlResolutions, err := tplengine.Resolve(p.URL, local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, urlResolutions)

	headers, headerResolutions, err := resolveStringMap(p.Headers, local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, headerResolutions)
	e.deps.Log.Emit(event.KindTemplateResolved, map[string]any{
		"task_id": t.ID, "alias": "headers", "value": core.RedactHeaders(headers),
	})

	method := p.Method
	if method == "" {
		method = "GET"
	}

	logger.FromContext(ctx).Debug("dispatching fetch", "task_id", t.ID, "method", p.Method, "url", url)

	req := e.deps.HTTP.R().SetContext(ctx).SetHeaders(headers)
	if p.Body != nil {
		body, resolutions, err := resolveDeep(p.Body, local)
		if err != nil {
			return nil, bindingErrorToErrs(t.ID, err)
		}
		e.emitResolutions(t.ID, resolutions)
		req = req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, errs.Wrap(errs.KindExecution, "execution.fetch_failed", "check the url and network reachability", err)
	}
	if resp.IsError() {
		return nil, errs.New(errs.KindExecution, "execution.fetch_status",
			fmt.Sprintf("task %q received HTTP %d from %s", t.ID, resp.StatusCode(), url),
			"inspect the response body for the upstream error detail")
	}

	var parsed any
	if json.Unmarshal(resp.Body(), &parsed) == nil {
		return parsed, nil
	}
	return string(resp.Body()), nil
}

// runInvoke is the `invoke` verb (spec §4.6 "invoke"): call an MCP tool or
// read an MCP resource, correlating the McpInvoke/McpResponse pair by a
// call id.
func (e *Executor) runInvoke(ctx context.Context, t *workflow.Task, local tplengine.Resolver) (any, error) {
	p := t.Action.Invoke
	if p.HasTool() == p.HasResource() {
		return nil, errs.InvalidInvokeParams(t.ID)
	}

	callID := core.MustNewID().String()

	if p.HasResource() {
		uri, resolutions, err := tplengine.Resolve(p.Resource, local)
		if err != nil {
			return nil, bindingErrorToErrs(t.ID, err)
		}
		e.emitResolutions(t.ID, resolutions)

		e.deps.Log.Emit(event.KindMcpInvoke, map[string]any{
			"task_id": t.ID, "call_id": callID, "server": p.Server, "resource": uri,
		})
		content, cached, err := e.deps.Mcp.ReadResource(ctx, p.Server, uri)
		if err != nil {
			e.deps.Log.Emit(event.KindMcpResponse, map[string]any{
				"task_id": t.ID, "call_id": callID, "error": err.Error(),
			})
			return nil, err
		}
		e.deps.Log.Emit(event.KindMcpResponse, map[string]any{
			"task_id": t.ID, "call_id": callID, "result": content, "cached": cached,
		})
		return content, nil
	}

	params, resolutions, err := resolveDeep(map[string]any(p.Params), local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, resolutions)
	args, _ := params.(map[string]any)

	e.deps.Log.Emit(event.KindMcpInvoke, map[string]any{
		"task_id": t.ID, "call_id": callID, "server": p.Server, "tool": p.Tool, "params": args,
	})
	result, cached, err := e.deps.Mcp.CallTool(ctx, p.Server, p.Tool, args)
	if err != nil {
		e.deps.Log.Emit(event.KindMcpResponse, map[string]any{
			"task_id": t.ID, "call_id": callID, "error": err.Error(),
		})
		return nil, err
	}
	e.deps.Log.Emit(event.KindMcpResponse, map[string]any{
		"task_id": t.ID, "call_id": callID, "result": result, "cached": cached,
	})
	return result, nil
}

// runAgent is the `agent` verb: delegate to the agent loop (C8).
func (e *Executor) runAgent(ctx context.Context, t *workflow.Task, local tplengine.Resolver) (any, error) {
	p := *t.Action.Agent

	prompt, resolutions, err := tplengine.Resolve(p.Prompt, local)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, resolutions)
	p.Prompt = prompt

	if p.System != "" {
		system, sysResolutions, err := tplengine.Resolve(p.System, local)
		if err != nil {
			return nil, bindingErrorToErrs(t.ID, err)
		}
		e.emitResolutions(t.ID, sysResolutions)
		p.System = system
	}
	if p.MaxTurns == 0 {
		p.MaxTurns = 20
	}

	providerName := firstNonEmpty(p.Provider, e.deps.DefaultProvider)
	model := firstNonEmpty(p.Model, e.deps.DefaultModel)
	client, err := e.deps.Providers(ctx, providerName, model)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "provider.unavailable", "check the provider name and credentials", err)
	}

	res, err := e.deps.Agent.Run(ctx, agent.Input{TaskID: t.ID, Params: p, Provider: client, Depth: 0})
	if err != nil {
		return nil, err
	}
	return res.FinalOutput, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
