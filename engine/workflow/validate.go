package workflow

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/supernovae-st/nika-sub001/engine/errs"
)

// useExpr matches a `{{use.<alias>...}}` or `{{use.<alias>...}}` binding
// reference anywhere inside a string value, e.g. in a prompt or fetch URL.
var useExpr = regexp.MustCompile(`\{\{\s*use\.([A-Za-z0-9_]+)`)

// Validate runs the binding wiring validator (component C10): every `use`
// alias must resolve to an upstream task, every mcp server referenced by an
// invoke/agent task must be declared, and the induced dependency graph must
// be acyclic. It returns the first error found; callers should treat a
// non-nil result as "do not schedule this document".
func (d *Document) Validate() error {
	ids := make(map[string]*Task, len(d.Tasks))
	for i := range d.Tasks {
		t := &d.Tasks[i]
		if t.ID == "" {
			return errs.Internal("workflow.Validate", fmt.Errorf("task at index %d has no id", i))
		}
		if _, dup := ids[t.ID]; dup {
			return errs.DuplicateTaskID(t.ID)
		}
		ids[t.ID] = t
	}

	for i := range d.Tasks {
		t := &d.Tasks[i]
		if err := validateAction(t, ids, d.Mcp); err != nil {
			return err
		}
		for alias, expr := range t.Use {
			srcs := referencedTasks(expr)
			if len(srcs) == 0 {
				return errs.DanglingBinding(t.ID, alias)
			}
			for _, src := range srcs {
				if _, ok := ids[src]; !ok {
					return errs.DanglingBinding(t.ID, alias)
				}
			}
		}
		if t.ForEach != nil {
			if expr, ok := t.UseBindingItemsExpr(); ok {
				for _, src := range referencedTasks(expr) {
					if _, ok := ids[src]; !ok {
						return errs.DanglingBinding(t.ID, "for_each.items")
					}
				}
			}
			if err := validateDecompose(t, ids, d.Mcp); err != nil {
				return err
			}
		}
	}

	for _, fl := range d.Flows {
		for _, s := range fl.Source {
			if _, ok := ids[s]; !ok {
				return errs.DanglingBinding(s, "flow.source")
			}
		}
		for _, tg := range fl.Target {
			if _, ok := ids[tg]; !ok {
				return errs.DanglingBinding(tg, "flow.target")
			}
		}
	}

	return d.checkAcyclic()
}

// validateDecompose checks a for_each task's decompose modifier, if any:
// a semantic strategy must name a declared mcp server, and a `{{use.*}}`
// Source expression must reference a known upstream task, the same rules
// invoke/agent tasks and for_each.items already follow.
func validateDecompose(t *Task, ids map[string]*Task, servers map[string]McpServerSpec) error {
	d := t.ForEach.Decompose
	if d == nil {
		return nil
	}
	if d.Strategy == DecomposeSemantic {
		if _, ok := servers[d.McpServer]; !ok {
			return errs.UnknownMcpServer(t.ID, d.McpServer)
		}
	}
	if expr, ok := t.DecomposeSourceExpr(); ok {
		for _, src := range referencedTasks(expr) {
			if _, ok := ids[src]; !ok {
				return errs.DanglingBinding(t.ID, "for_each.decompose.source")
			}
		}
	}
	return nil
}

func validateAction(t *Task, ids map[string]*Task, servers map[string]McpServerSpec) error {
	switch t.Action.Kind {
	case VerbInvoke:
		p := t.Action.Invoke
		if p == nil {
			return errs.InvalidInvokeParams(t.ID)
		}
		if p.HasTool() == p.HasResource() {
			return errs.InvalidInvokeParams(t.ID)
		}
		if _, ok := servers[p.Server]; !ok {
			return errs.UnknownMcpServer(t.ID, p.Server)
		}
	case VerbAgent:
		p := t.Action.Agent
		if p == nil || p.Prompt == "" {
			return errs.InvalidAgentParams(t.ID, "missing prompt")
		}
		for _, name := range p.McpServers {
			if _, ok := servers[name]; !ok {
				return errs.UnknownMcpServer(t.ID, name)
			}
		}
	case VerbInfer, VerbExec, VerbFetch:
		// no cross-document reference to validate
	default:
		return errs.Internal("workflow.Validate", fmt.Errorf("task %q has unknown verb %q", t.ID, t.Action.Kind))
	}
	return nil
}

// referencedTasks extracts every distinct task id named by a `{{use.X...}}`
// expression, in first-seen order.
func referencedTasks(expr string) []string {
	matches := useExpr.FindAllStringSubmatch(expr, -1)
	if matches == nil {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		alias := m[1]
		if !seen[alias] {
			seen[alias] = true
			out = append(out, alias)
		}
	}
	return out
}

// checkAcyclic builds the union of explicit flow edges and implied `use`/
// for_each edges, then DFS-walks it looking for a back edge.
func (d *Document) checkAcyclic() error {
	adj := make(map[string][]string)
	for i := range d.Tasks {
		t := &d.Tasks[i]
		for _, expr := range t.Use {
			for _, src := range referencedTasks(expr) {
				adj[src] = append(adj[src], t.ID)
			}
		}
		if t.ForEach != nil {
			if expr, ok := t.UseBindingItemsExpr(); ok {
				for _, src := range referencedTasks(expr) {
					adj[src] = append(adj[src], t.ID)
				}
			}
			if expr, ok := t.DecomposeSourceExpr(); ok {
				for _, src := range referencedTasks(expr) {
					adj[src] = append(adj[src], t.ID)
				}
			}
		}
	}
	for _, fl := range d.Flows {
		for _, s := range fl.Source {
			for _, tg := range fl.Target {
				adj[s] = append(adj[s], tg)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.Tasks))
	order := make([]string, len(d.Tasks))
	for i, t := range d.Tasks {
		order[i] = t.ID
	}
	sort.Strings(order)

	var cyclePath []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		cyclePath = append(cyclePath, id)
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				cyclePath = append(cyclePath, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		cyclePath = cyclePath[:len(cyclePath)-1]
		color[id] = black
		return false
	}
	for _, id := range order {
		if color[id] == white {
			cyclePath = nil
			if visit(id) {
				return errs.CyclicGraph(cyclePath)
			}
		}
	}
	return nil
}
