// Package executor implements the engine's task executor (nika spec §4.6,
// component C7): the per-task pipeline that resolves bindings and
// templates, dispatches to one of the five verb handlers, and records the
// result (or failure) in the data store and event log.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/supernovae-st/nika-sub001/engine/agent"
	"github.com/supernovae-st/nika-sub001/engine/core"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/mcp"
	"github.com/supernovae-st/nika-sub001/engine/store"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
	"github.com/supernovae-st/nika-sub001/pkg/tplengine"
)

// ProviderFactory resolves a (provider name, model name) pair — already
// defaulted by the caller from task/workflow overrides — to a
// resilience-wrapped ChatClient. Concurrent callers asking for the same
// pair are expected to share one underlying client (spec §5's get-or-init
// invariant); that coalescing lives in engine/llm/registry, one layer
// below this factory function.
type ProviderFactory func(ctx context.Context, providerName, model string) (provider.ChatClient, error)

// Deps are the shared, run-scoped collaborators every task dispatch uses.
type Deps struct {
	Store      *store.Store
	Log        *event.Log
	Mcp        mcp.Registry
	Agent      *agent.Loop
	Providers  ProviderFactory
	HTTP       *resty.Client
	DefaultProvider string
	DefaultModel    string

	ShellTimeout      time.Duration
	FetchTimeout      time.Duration
	FetchMaxRedirects int
}

// Executor dispatches one task at a time; it is stateless beyond Deps and
// safe for concurrent use across tasks in the same run.
type Executor struct {
	deps Deps
}

func New(deps Deps) *Executor {
	if deps.ShellTimeout <= 0 {
		deps.ShellTimeout = 5 * time.Minute
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 30 * time.Second
	}
	return &Executor{deps: deps}
}

// IterScope carries the current for_each iteration's variable name/value
// into a child task's binding resolution; the zero value means "not
// iterating".
type IterScope struct {
	Name  string
	Value any
}

// Run executes one task end to end: build its UseBindings, resolve
// templates in its action parameters, dispatch the verb, and record the
// outcome. The returned error, if any, is always an *errs.Error.
func (e *Executor) Run(ctx context.Context, t *workflow.Task, iter IterScope) (any, error) {
	e.deps.Log.Emit(event.KindTaskStarted, map[string]any{"task_id": t.ID})
	start := time.Now()

	result, err := e.dispatch(ctx, t, iter)
	duration := time.Since(start)

	if err != nil {
		e.deps.Log.Emit(event.KindTaskFailed, map[string]any{
			"task_id": t.ID, "error": asErrorMap(err), "duration_ms": duration.Milliseconds(),
		})
		return nil, err
	}

	if t.Output != nil && t.Output.Format == "json" {
		result, err = coerceJSON(t.ID, result)
		if err != nil {
			e.deps.Log.Emit(event.KindTaskFailed, map[string]any{
				"task_id": t.ID, "error": asErrorMap(err), "duration_ms": duration.Milliseconds(),
			})
			return nil, err
		}
	}

	e.deps.Store.Insert(t.ID, result)
	e.deps.Log.Emit(event.KindTaskCompleted, map[string]any{
		"task_id": t.ID, "duration_ms": duration.Milliseconds(),
	})
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, t *workflow.Task, iter IterScope) (any, error) {
	global := globalResolver(e.deps.Store, iter.Name, iter.Value)
	bindings, resolutions, err := resolveUseBindings(t, global)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}
	e.emitResolutions(t.ID, resolutions)

	local := localResolver(bindings)

	switch t.Action.Kind {
	case workflow.VerbInfer:
		return e.runInfer(ctx, t, local)
	case workflow.VerbExec:
		return e.runExec(ctx, t, local)
	case workflow.VerbFetch:
		return e.runFetch(ctx, t, local)
	case workflow.VerbInvoke:
		return e.runInvoke(ctx, t, local)
	case workflow.VerbAgent:
		return e.runAgent(ctx, t, local)
	default:
		return nil, errs.Internal("executor.dispatch", fmt.Errorf("task %q has unknown verb %q", t.ID, t.Action.Kind))
	}
}

func (e *Executor) emitResolutions(taskID string, resolutions []tplengine.Resolution) {
	for _, r := range resolutions {
		e.deps.Log.Emit(event.KindTemplateResolved, map[string]any{
			"task_id": taskID, "alias": r.Alias, "value": core.RedactString(fmt.Sprint(r.Value)),
		})
	}
}

func resolveUseBindings(t *workflow.Task, resolver tplengine.Resolver) (map[string]any, []tplengine.Resolution, error) {
	out := make(map[string]any, len(t.Use))
	var all []tplengine.Resolution
	for alias, expr := range t.Use {
		val, resolutions, err := resolveBindingExpr(expr, resolver)
		if err != nil {
			return nil, nil, err
		}
		out[alias] = val
		all = append(all, resolutions...)
	}
	return out, all, nil
}

// resolveBindingExpr resolves expr against resolver. When expr is exactly
// one `{{use.<path>}}` reference with no surrounding text, the raw
// resolved value is returned (so a bound list/object survives structurally
// rather than being stringified); otherwise it is treated as a template
// with embedded references and the substituted string is returned.
func resolveBindingExpr(expr string, resolver tplengine.Resolver) (any, []tplengine.Resolution, error) {
	refs := tplengine.References(expr)
	if len(refs) == 1 && expr == "{{use."+refs[0]+"}}" {
		v, ok := resolver(refs[0])
		if !ok {
			return nil, nil, &tplengine.BindingError{Alias: refs[0]}
		}
		return v, []tplengine.Resolution{{Alias: refs[0], Value: v}}, nil
	}
	out, resolutions, err := tplengine.Resolve(expr, resolver)
	if err != nil {
		return nil, nil, err
	}
	return out, resolutions, nil
}

func bindingErrorToErrs(taskID string, err error) error {
	if be, ok := err.(*tplengine.BindingError); ok {
		return errs.DanglingBinding(taskID, be.Alias)
	}
	return errs.Internal("executor.bindings", err)
}

func asErrorMap(err error) map[string]any {
	var e *errs.Error
	if ee, ok := err.(*errs.Error); ok {
		e = ee
	}
	if e == nil {
		return map[string]any{"message": err.Error()}
	}
	return e.AsMap()
}

func coerceJSON(taskID string, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, errs.JSONParseFailed(taskID, err)
	}
	return parsed, nil
}

// ResolveForEachItems resolves t.ForEach's source to a concrete list: a
// literal Items list passes through unchanged; a `{{use.*}}` binding
// expression is resolved against the store at the moment the parent task
// becomes ready (spec §9 design note — not at load time); a Decompose
// spec resolves via resolveDecomposeItems instead.
func (e *Executor) ResolveForEachItems(ctx context.Context, t *workflow.Task) ([]any, error) {
	if t.ForEach == nil {
		return nil, nil
	}
	if t.ForEach.Decompose != nil {
		return e.resolveDecomposeItems(ctx, t)
	}
	if expr, ok := t.UseBindingItemsExpr(); ok {
		resolver := globalResolver(e.deps.Store, "", nil)
		v, _, err := resolveBindingExpr(expr, resolver)
		if err != nil {
			return nil, bindingErrorToErrs(t.ID, err)
		}
		return toSlice(v), nil
	}
	return toSlice(t.ForEach.Items), nil
}

func toSlice(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case nil:
		return nil
	default:
		return []any{val}
	}
}
