// Package workflow holds the engine's workflow document model (nika spec
// §3 "Data Model") and the binding wiring validator (§4.9, component C10)
// that runs once before any task is dispatched.
package workflow

// Document is a parsed workflow: schema/provider/model defaults, declared
// MCP servers, an ordered task list, and explicit flow edges. Parsing the
// surface syntax into a Document is out of scope (spec.md §1) — callers
// hand the engine an already-valid Document.
type Document struct {
	Schema         string
	Provider       string
	Model          string
	Mcp            map[string]McpServerSpec
	Tasks          []Task
	Flows          []FlowEdge
	MaxConcurrency int
}

// FlowEdge is a document-order edge between tasks; either endpoint may list
// more than one task id, which fans the edge out into the cross product of
// sources and targets.
type FlowEdge struct {
	Source []string
	Target []string
}

// McpServerSpec configures a subprocess MCP tool server reached over stdio.
type McpServerSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
}

// VerbKind tags which field of Action is populated.
type VerbKind string

const (
	VerbInfer  VerbKind = "infer"
	VerbExec   VerbKind = "exec"
	VerbFetch  VerbKind = "fetch"
	VerbInvoke VerbKind = "invoke"
	VerbAgent  VerbKind = "agent"
)

// Action is a task's verb invocation; exactly one of the pointer fields is
// set, matching Kind.
type Action struct {
	Kind   VerbKind
	Infer  *InferParams
	Exec   *ExecParams
	Fetch  *FetchParams
	Invoke *InvokeParams
	Agent  *AgentParams
}

// InferParams is a single-shot LLM inference. A bare string in the surface
// syntax is shorthand for InferParams{Prompt: <string>}.
type InferParams struct {
	Prompt   string
	Provider string
	Model    string
}

// ExecParams is a shell command. A bare string is shorthand for
// ExecParams{Command: <string>}.
type ExecParams struct {
	Command string
}

// FetchParams is an HTTP request; Method defaults to GET.
type FetchParams struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// InvokeParams calls an MCP tool or reads an MCP resource on Server; exactly
// one of Tool or Resource must be set (spec.md §3 invariant).
type InvokeParams struct {
	Server   string
	Tool     string
	Params   map[string]any
	Resource string
}

// HasTool reports whether this invoke targets a tool rather than a resource.
func (p *InvokeParams) HasTool() bool { return p != nil && p.Tool != "" }

// HasResource reports whether this invoke targets a resource.
func (p *InvokeParams) HasResource() bool { return p != nil && p.Resource != "" }

// AgentParams drives a multi-turn agent loop (component C8).
type AgentParams struct {
	Prompt           string
	System           string
	McpServers       []string
	MaxTurns         int
	TokenBudget      int
	StopConditions   []string
	ExtendedThinking bool
	ThinkingBudget   int
	Provider         string
	Model            string
	DepthLimit       int
}

// ForEach fans a task out into one child task per item in an iterable,
// bound to the name in As. Items is either a literal []any or a
// `{{use.*}}` binding expression string resolved once the parent task
// becomes ready (spec.md §9 design note). Decompose, when set, replaces
// Items as the source of the iterable: it fans out over a graph structure
// rather than a plain list (spec.md §9 design note, supplemented from the
// original engine's decompose: modifier).
type ForEach struct {
	Items       any
	Decompose   *DecomposeSpec
	As          string
	Concurrency int
}

// DecomposeStrategy selects how a DecomposeSpec turns a graph-shaped source
// into a concrete item list.
type DecomposeStrategy string

const (
	// DecomposeStatic resolves Source directly to an array, the same as a
	// plain ForEach.Items binding expression, then truncates to MaxItems.
	DecomposeStatic DecomposeStrategy = "static"
	// DecomposeSemantic resolves Source to a node key, then calls an MCP
	// graph-traversal tool to discover the item list rather than reading
	// it from a fixed location in the store.
	DecomposeSemantic DecomposeStrategy = "semantic"
	// DecomposeNested is accepted as a value but not implemented; the
	// original engine never implemented it either.
	DecomposeNested DecomposeStrategy = "nested"
)

// DecomposeSpec configures a decompose: fan-out. Source names the binding
// (or literal) the items come from; for DecomposeSemantic it is resolved
// to a starting node key rather than to the items themselves. Traverse
// names the graph edge/arc to follow and McpServer the server exposing the
// traversal tool; both are ignored by DecomposeStatic. MaxItems, when > 0,
// truncates the resolved list.
type DecomposeSpec struct {
	Strategy  DecomposeStrategy
	Source    any
	Traverse  string
	McpServer string
	MaxItems  int
}

// OutputSpec is the task's output-shaping hint.
type OutputSpec struct {
	Format string // "json", or empty for the verb's native shape
}

// Task is one node in the workflow graph.
type Task struct {
	ID      string
	Action  Action
	Use     map[string]string
	ForEach *ForEach
	Output  *OutputSpec
	// IsOutput marks the designated "final output" task (spec.md §4.8).
	IsOutput bool
}

// UseBindingItemsExpr returns ForEach.Items as a `{{use.*}}` binding
// expression string, or ("", false) when Items is a literal list.
func (t *Task) UseBindingItemsExpr() (string, bool) {
	if t.ForEach == nil {
		return "", false
	}
	s, ok := t.ForEach.Items.(string)
	return s, ok
}

// DecomposeSourceExpr returns ForEach.Decompose.Source as a `{{use.*}}`
// binding expression string, or ("", false) when there is no decompose
// modifier or its Source is a literal value.
func (t *Task) DecomposeSourceExpr() (string, bool) {
	if t.ForEach == nil || t.ForEach.Decompose == nil {
		return "", false
	}
	s, ok := t.ForEach.Decompose.Source.(string)
	return s, ok
}
