// Package event implements the engine's event log (nika spec §4.1,
// component C1): an append-only, thread-safe sequence of typed events that
// broadcasts to subscribers. Every other component emits into a shared Log;
// nothing else persists engine state across a run.
package event

import (
	"time"
)

// Kind enumerates the event kinds spec.md §3 "Event" lists.
type Kind string

const (
	KindWorkflowStarted   Kind = "workflow.started"
	KindWorkflowCompleted Kind = "workflow.completed"
	KindWorkflowFailed    Kind = "workflow.failed"

	KindTaskScheduled Kind = "task.scheduled"
	KindTaskStarted   Kind = "task.started"
	KindTaskCompleted Kind = "task.completed"
	KindTaskFailed    Kind = "task.failed"

	KindTemplateResolved Kind = "template.resolved"

	KindProviderCalled    Kind = "provider.called"
	KindProviderResponded Kind = "provider.responded"
	KindContextAssembled  Kind = "context.assembled"

	KindMcpInvoke   Kind = "mcp.invoke"
	KindMcpResponse Kind = "mcp.response"

	KindAgentStart    Kind = "agent.start"
	KindAgentTurn     Kind = "agent.turn"
	KindAgentComplete Kind = "agent.complete"
	KindAgentSpawned  Kind = "agent.spawned"

	// KindToolConflict records a name collision across two MCP servers
	// offered to the same agent run (spec §4.7/§9: first-declared wins,
	// and the collision is surfaced rather than silently resolved).
	KindToolConflict Kind = "agent.tool_conflict"
)

// Event is one entry in the log: a monotonic id, milliseconds since the log
// was created, a Kind, and a free-form payload. Payload keys are
// kind-specific; see the Emit* helpers in this package for the shape each
// kind carries.
type Event struct {
	ID        uint64         `json:"id"`
	Timestamp uint64         `json:"timestamp_ms"`
	Kind      Kind           `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// TaskID returns the "task_id" field of Data, if present, used by
// FilterTask and by dependency-ordering checks.
func (e Event) TaskID() (string, bool) {
	v, ok := e.Data["task_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func elapsedMs(start time.Time) uint64 {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}
