// Package errs is the engine's single failure surface (nika spec §7,
// component C11): every error the engine returns to a caller is a *Error
// carrying a machine-readable Kind, a Code, and a human fix hint.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy spec.md §7 defines. Validation
// errors are global (they abort a run before dispatch); the rest are local
// to the task or call that produced them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindProvider   Kind = "provider"
	KindExecution  Kind = "execution"
	KindMcp        Kind = "mcp"
	KindResilience Kind = "resilience"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error is the engine's typed error. Code is a short machine-readable
// identifier ("mcp.not_connected", "validation.dangling_binding", ...);
// FixHint is a human sentence suggesting a remedy.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	FixHint string
	cause   error
}

func New(kind Kind, code, message, fixHint string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, FixHint: fixHint}
}

func Wrap(kind Kind, code, fixHint string, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, FixHint: fixHint, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.FixHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.FixHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports Kind equality so callers can `errors.Is(err, errs.KindMcp)`-style
// checks via errors.As on *Error and comparing Kind directly; provided for
// symmetry with the standard library's sentinel pattern.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && e.Code == other.Code
	}
	return false
}

// AsMap renders the error for inclusion in an event or a caller-facing
// result, per spec §7 "User-visible failure".
func (e *Error) AsMap() map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"kind":     string(e.Kind),
		"code":     e.Code,
		"message":  e.Message,
		"fix_hint": e.FixHint,
	}
}

// --- Validation constructors -------------------------------------------------

func DanglingBinding(taskID, alias string) *Error {
	return New(KindValidation, "validation.dangling_binding",
		fmt.Sprintf("task %q references undefined binding %q", taskID, alias),
		"declare a task with that id, or bind to an in-scope for_each iteration variable")
}

func CyclicGraph(cycle []string) *Error {
	return New(KindValidation, "validation.cycle",
		fmt.Sprintf("dependency cycle detected: %v", cycle),
		"break the cycle by removing one of the listed flow edges or use bindings")
}

func DuplicateTaskID(id string) *Error {
	return New(KindValidation, "validation.duplicate_task_id",
		fmt.Sprintf("duplicate task id %q", id),
		"task ids must be unique within a workflow")
}

func UnknownMcpServer(taskID, server string) *Error {
	return New(KindValidation, "validation.unknown_mcp_server",
		fmt.Sprintf("task %q references undeclared mcp server %q", taskID, server),
		"add the server to the workflow's mcp: map")
}

func InvalidInvokeParams(taskID string) *Error {
	return New(KindValidation, "validation.invalid_invoke_params",
		fmt.Sprintf("task %q must set exactly one of tool or resource", taskID),
		"set either `tool` with params or `resource` with a uri, not both or neither")
}

func InvalidAgentParams(taskID, reason string) *Error {
	return New(KindValidation, "validation.invalid_agent_params",
		fmt.Sprintf("task %q has invalid agent params: %s", taskID, reason),
		"prompt must be non-empty and max_turns must be in [1,100]")
}

// --- Execution / Mcp / Resilience / Cancelled constructors -------------------

func ExecTimeout(taskID string) *Error {
	return New(KindExecution, "execution.shell_timeout",
		fmt.Sprintf("task %q exceeded its shell execution timeout", taskID),
		"raise shell_exec_timeout or make the command finish sooner")
}

func ExecNonZeroExit(taskID string, code int, stderr string) *Error {
	return New(KindExecution, "execution.nonzero_exit",
		fmt.Sprintf("task %q exited %d: %s", taskID, code, stderr),
		"inspect stderr and fix the underlying command")
}

func JSONParseFailed(taskID string, cause error) *Error {
	return Wrap(KindExecution, "execution.json_parse_failed",
		"the task declared format: json but its output was not valid JSON", cause)
}

func McpNotConnected(server string) *Error {
	return New(KindMcp, "mcp.not_connected",
		fmt.Sprintf("mcp server %q is not connected", server),
		"call connect() before issuing tool/resource calls")
}

func McpToolNotFound(server, tool string) *Error {
	return New(KindMcp, "mcp.tool_not_found",
		fmt.Sprintf("mcp server %q has no tool %q", server, tool),
		"call list_tools to see what the server exposes")
}

func McpToolError(server, tool, message string) *Error {
	return New(KindMcp, "mcp.tool_error",
		fmt.Sprintf("tool %q on server %q returned an error: %s", tool, server, message),
		"the tool call's own error content explains the failure")
}

func McpSubprocessTerminated(server string, cause error) *Error {
	return Wrap(KindMcp, "mcp.subprocess_terminated", "restart the mcp client connection", cause)
}

func CircuitOpen(provider string) *Error {
	return New(KindResilience, "resilience.circuit_open",
		fmt.Sprintf("circuit breaker for %q is open", provider),
		"wait for the cooldown to elapse or investigate the upstream failures")
}

func RateLimited(provider string) *Error {
	return New(KindResilience, "resilience.rate_limited",
		fmt.Sprintf("rate limit denied a call to %q", provider),
		"raise rate_limit_capacity/refill or reduce call frequency")
}

func RetryExhausted(provider string, attempts int, cause error) *Error {
	return Wrap(KindResilience, "resilience.retry_exhausted",
		fmt.Sprintf("investigate why %q failed %d consecutive attempts", provider, attempts), cause)
}

func DepthLimitReached(taskID string, depth, limit int) *Error {
	return New(KindExecution, "execution.depth_limit_reached",
		fmt.Sprintf("task %q tried to spawn a nested agent at depth %d, limit is %d", taskID, depth, limit),
		"raise depth_limit or stop spawning nested agents at this depth")
}

func Cancelled(reason string) *Error {
	return New(KindCancelled, "cancelled", reason, "this is expected under external cancellation or a timeout")
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, "internal.invariant_violation", "this indicates a bug in the engine itself; "+message, cause)
}
