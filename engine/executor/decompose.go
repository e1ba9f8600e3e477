package executor

import (
	"context"
	"encoding/json"

	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
	"github.com/supernovae-st/nika-sub001/pkg/tplengine"
)

// resolveDecomposeItems resolves a decompose: fan-out (supplemented from
// the original engine's runtime/decomposer.rs, which folds the same logic
// directly into its task executor rather than a standalone module). static
// resolves Source to an array the same way a plain for_each items binding
// would; semantic instead resolves Source to a starting node key and asks
// an MCP graph-traversal tool for the neighborhood to fan out over; nested
// is accepted syntax but was never implemented in the original either, so
// it isn't here.
func (e *Executor) resolveDecomposeItems(ctx context.Context, t *workflow.Task) ([]any, error) {
	d := t.ForEach.Decompose
	switch d.Strategy {
	case workflow.DecomposeStatic:
		return e.resolveDecomposeStatic(t, d)
	case workflow.DecomposeSemantic:
		return e.resolveDecomposeSemantic(ctx, t, d)
	case workflow.DecomposeNested:
		return nil, errs.New(errs.KindValidation, "validation.decompose_nested_unimplemented",
			"decompose strategy \"nested\" is not implemented for task "+t.ID,
			"use \"static\" or \"semantic\" instead")
	default:
		return nil, errs.New(errs.KindValidation, "validation.unknown_decompose_strategy",
			"task "+t.ID+" has an unknown decompose strategy", "use \"static\" or \"semantic\"")
	}
}

func (e *Executor) resolveDecomposeStatic(t *workflow.Task, d *workflow.DecomposeSpec) ([]any, error) {
	resolver := globalResolver(e.deps.Store, "", nil)
	v, err := resolveDecomposeSource(t.ID, d.Source, resolver)
	if err != nil {
		return nil, err
	}
	return truncateItems(toSlice(v), d.MaxItems), nil
}

func (e *Executor) resolveDecomposeSemantic(ctx context.Context, t *workflow.Task, d *workflow.DecomposeSpec) ([]any, error) {
	resolver := globalResolver(e.deps.Store, "", nil)
	src, err := resolveDecomposeSource(t.ID, d.Source, resolver)
	if err != nil {
		return nil, err
	}
	key, err := decomposeSourceKey(src)
	if err != nil {
		return nil, bindingErrorToErrs(t.ID, err)
	}

	result, _, err := e.deps.Mcp.CallTool(ctx, d.McpServer, "novanet_traverse", map[string]any{
		"start":     key,
		"arc":       d.Traverse,
		"direction": "outgoing",
	})
	if err != nil {
		return nil, err
	}

	nodes, err := extractDecomposeNodes(result)
	if err != nil {
		return nil, errs.JSONParseFailed(t.ID, err)
	}
	return truncateItems(nodes, d.MaxItems), nil
}

// resolveDecomposeSource resolves d.Source: a `{{use.*}}` binding
// expression is resolved against resolver the same way a plain for_each
// items expression is (tplengine.Resolve leaves a template-free string
// untouched); any other value (a literal list, or a literal node
// descriptor for the semantic strategy) passes through unchanged.
func resolveDecomposeSource(taskID string, source any, resolver tplengine.Resolver) (any, error) {
	expr, ok := source.(string)
	if !ok {
		return source, nil
	}
	v, _, err := resolveBindingExpr(expr, resolver)
	if err != nil {
		return nil, bindingErrorToErrs(taskID, err)
	}
	return v, nil
}

// decomposeSourceKey extracts the traversal starting key from a resolved
// source value: either the value itself (a plain string key) or, for
// object-shaped sources, its "key" field.
func decomposeSourceKey(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case map[string]any:
		if k, ok := val["key"].(string); ok {
			return k, nil
		}
	}
	return "", errs.New(errs.KindValidation, "validation.decompose_source_key",
		"decompose source did not resolve to a string key or an object with a \"key\" field", "")
}

// extractDecomposeNodes parses an MCP traversal tool's JSON text response
// and extracts the node list: the response may be a raw JSON array, or an
// object carrying the array under a "nodes", "items", or "results" field.
func extractDecomposeNodes(raw string) ([]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	switch val := parsed.(type) {
	case []any:
		return val, nil
	case map[string]any:
		for _, field := range []string{"nodes", "items", "results"} {
			if arr, ok := val[field].([]any); ok {
				return arr, nil
			}
		}
	}
	return nil, nil
}

func truncateItems(items []any, max int) []any {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
