package executor

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/supernovae-st/nika-sub001/engine/store"
	"github.com/supernovae-st/nika-sub001/pkg/tplengine"
)

// globalResolver resolves a `{{use.<path>}}` reference found in a task's
// own `use:` map (or its for_each items expression) against the data
// store: the leading path segment names an upstream task id, unless it
// equals iterName, in which case it names the current for_each item
// (spec §4.2/§4.6 step 1).
func globalResolver(s *store.Store, iterName string, iterValue any) tplengine.Resolver {
	return func(path string) (any, bool) {
		if iterName != "" {
			if path == iterName {
				return iterValue, true
			}
			if rest, ok := stripIterPrefix(path, iterName); ok {
				return resolveRelative(iterValue, rest)
			}
		}
		return s.Resolve(path)
	}
}

// localResolver resolves a `{{use.<alias>}}` reference found in a task's
// action parameters against the UseBindings map built from that task's own
// `use:` entries (spec §4.6 step 2) — a separate, task-local namespace
// from globalResolver's task-id namespace.
func localResolver(bindings map[string]any) tplengine.Resolver {
	return func(path string) (any, bool) {
		norm := store.NormalizePath(path)
		root, rest, hasRest := strings.Cut(norm, ".")
		v, ok := bindings[root]
		if !ok {
			return nil, false
		}
		if !hasRest || rest == "" {
			return v, true
		}
		return resolveRelative(v, rest)
	}
}

func stripIterPrefix(path, iterName string) (string, bool) {
	if strings.HasPrefix(path, iterName+".") {
		return strings.TrimPrefix(path, iterName+"."), true
	}
	if strings.HasPrefix(path, iterName+"[") {
		return strings.TrimPrefix(path, iterName), true
	}
	return "", false
}

// resolveRelative walks relPath ("", ".field", "[0]", "field[0].id") into
// value by round-tripping through JSON and gjson, the same mechanism
// store.Resolve uses for a task's own output.
func resolveRelative(value any, relPath string) (any, bool) {
	if relPath == "" {
		return value, true
	}
	norm := strings.TrimPrefix(store.NormalizePath(relPath), ".")
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(b, norm)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
