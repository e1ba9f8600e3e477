// Package agent implements the engine's multi-turn agent loop (nika spec
// §4.7, component C8): it drives a provider through a bounded number of
// chat turns, assembling a tool set from MCP clients, executing tool calls
// the model requests, and stopping on the first of several conditions.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supernovae-st/nika-sub001/engine/core"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/llm/provider"
	"github.com/supernovae-st/nika-sub001/engine/mcp"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

const spawnAgentTool = "spawn_agent"

// Status is why a run's turn loop stopped, mirroring spec §4.7 step 4.
type Status string

const (
	StatusStopCondition     Status = "stop_condition_met"
	StatusTokenBudget       Status = "token_budget_exhausted"
	StatusNaturalCompletion Status = "natural_completion"
	StatusMaxTurns          Status = "max_turns_reached"
)

// Result is what a Loop.Run call returns to its caller (the task executor,
// or a parent agent run for spawn_agent).
type Result struct {
	Status      Status
	Turns       int
	FinalOutput any
	TotalTokens int
}

// Input parameterizes one Run call.
type Input struct {
	TaskID   string
	Params   workflow.AgentParams
	Provider provider.ChatClient
	// Depth is this run's nesting level; 0 for a top-level agent task.
	Depth int
}

// Loop drives one agent run at a time; it holds no per-run state itself, so
// one Loop is shared across every agent task and every nested spawn in a
// workflow run.
type Loop struct {
	mcp mcp.Registry
	log *event.Log
}

// New creates a Loop backed by registry (for tool listing/calls) and log
// (for AgentStart/AgentTurn/AgentComplete/McpInvoke/McpResponse events).
func New(registry mcp.Registry, log *event.Log) *Loop {
	return &Loop{mcp: registry, log: log}
}

type toolEntry struct {
	spec   provider.ToolSpec
	server string // "" for the internal spawn_agent tool
}

// Run validates in.Params, assembles the tool set, then drives turns until
// a stop condition fires.
func (l *Loop) Run(ctx context.Context, in Input) (*Result, error) {
	p := in.Params
	if p.Prompt == "" {
		return nil, errs.InvalidAgentParams(in.TaskID, "missing prompt")
	}
	if p.MaxTurns < 1 || p.MaxTurns > 100 {
		return nil, errs.InvalidAgentParams(in.TaskID, "max_turns must be in [1,100]")
	}
	for _, name := range p.McpServers {
		if _, err := l.mcp.Get(ctx, name); err != nil {
			return nil, err
		}
	}

	tools, owners, err := l.collectTools(ctx, in.TaskID, p)
	if err != nil {
		return nil, err
	}
	allowSpawn := p.DepthLimit > 1 && in.Depth+1 < p.DepthLimit
	if allowSpawn {
		tools = append(tools, spawnAgentSpec())
		owners[spawnAgentTool] = ""
	}

	messages := initialMessages(p)

	l.log.Emit(event.KindAgentStart, map[string]any{
		"task_id":     in.TaskID,
		"max_turns":   p.MaxTurns,
		"mcp_servers": p.McpServers,
		"depth":       in.Depth,
	})

	totalTokens := 0
	var status Status
	var lastText string

	for turn := 0; turn < p.MaxTurns; turn++ {
		l.log.Emit(event.KindAgentTurn, map[string]any{
			"task_id": in.TaskID, "turn": turn, "kind": "started",
		})

		resp, err := in.Provider.Chat(ctx, messages, tools)
		if err != nil {
			return nil, errs.Wrap(errs.KindProvider, "provider.chat_failed", "check provider credentials and network reachability", err)
		}

		totalTokens += resp.Usage.TotalTokens + resp.Usage.ThinkingTokens
		lastText = resp.Message.Content

		l.log.Emit(event.KindProviderResponded, map[string]any{
			"task_id":           in.TaskID,
			"input_tokens":      resp.Usage.PromptTokens,
			"output_tokens":     resp.Usage.CompletionTokens,
			"cache_read_tokens": resp.Usage.CacheReadTokens,
			"cost_usd":          resp.Usage.CostUSD,
		})
		l.log.Emit(event.KindAgentTurn, map[string]any{
			"task_id": in.TaskID, "turn": turn, "kind": "completed",
			"metadata": map[string]any{
				"thinking":          resp.Message.Thinking,
				"response_text":    resp.Message.Content,
				"input_tokens":      resp.Usage.PromptTokens,
				"output_tokens":     resp.Usage.CompletionTokens,
				"cache_read_tokens": resp.Usage.CacheReadTokens,
				"stop_reason":       string(resp.StopReason),
			},
		})

		if stopped, why := checkStopConditions(resp, turn, p, totalTokens); stopped {
			status = why
			messages = append(messages, resp.Message)
			break
		}

		messages = append(messages, resp.Message)
		toolMessages, err := l.executeToolCalls(ctx, in, resp.Message.ToolCalls, owners, allowSpawn)
		if err != nil {
			return nil, err
		}
		messages = append(messages, toolMessages...)
	}
	if status == "" {
		status = StatusMaxTurns
	}

	l.log.Emit(event.KindAgentComplete, map[string]any{
		"task_id": in.TaskID, "turns": countTurns(messages), "stop_reason": string(status),
	})

	return &Result{
		Status:      status,
		Turns:       countTurns(messages),
		FinalOutput: finalOutput(lastText),
		TotalTokens: totalTokens,
	}, nil
}

func initialMessages(p workflow.AgentParams) []provider.Message {
	var messages []provider.Message
	if p.System != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: p.System})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: p.Prompt})
	return messages
}

// countTurns reports how many assistant messages have been appended, which
// equals the number of provider calls made so far.
func countTurns(messages []provider.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == provider.RoleAssistant {
			n++
		}
	}
	return n
}

func checkStopConditions(resp *provider.ChatResponse, turn int, p workflow.AgentParams, totalTokens int) (bool, Status) {
	for _, s := range p.StopConditions {
		if s != "" && containsSubstring(resp.Message.Content, s) {
			return true, StatusStopCondition
		}
	}
	if p.TokenBudget > 0 && totalTokens >= p.TokenBudget {
		return true, StatusTokenBudget
	}
	if resp.StopReason == provider.StopEndTurn && len(resp.Message.ToolCalls) == 0 {
		return true, StatusNaturalCompletion
	}
	if turn+1 >= p.MaxTurns {
		return true, StatusMaxTurns
	}
	return false, ""
}

func containsSubstring(haystack, needle string) bool {
	return len(needle) > 0 && (len(haystack) >= len(needle)) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// collectTools lists every configured server's tools, deduplicating by name
// with first-declared-server wins (SPEC_FULL.md §D decision 3), emitting a
// KindToolConflict event for each collision.
func (l *Loop) collectTools(ctx context.Context, taskID string, p workflow.AgentParams) ([]provider.ToolSpec, map[string]string, error) {
	var specs []provider.ToolSpec
	owners := make(map[string]string)
	for _, server := range p.McpServers {
		tools, err := l.mcp.Tools(ctx, server)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range tools {
			if existing, ok := owners[t.Name]; ok {
				l.log.Emit(event.KindToolConflict, map[string]any{
					"task_id": taskID, "tool": t.Name, "kept_server": existing, "dropped_server": server,
				})
				continue
			}
			owners[t.Name] = server
			specs = append(specs, provider.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}
	return specs, owners, nil
}

func spawnAgentSpec() provider.ToolSpec {
	return provider.ToolSpec{
		Name:        spawnAgentTool,
		Description: "Spawn a nested agent to work on a sub-task and return its final output.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id":   map[string]any{"type": "string"},
				"prompt":    map[string]any{"type": "string"},
				"max_turns": map[string]any{"type": "integer"},
			},
			"required": []string{"prompt"},
		},
	}
}

// executeToolCalls dispatches every model-requested tool call to its owning
// MCP server (or the internal spawn_agent handler), emitting a correlated
// McpInvoke/McpResponse pair per call and returning the tool-role reply
// messages to append to the conversation.
func (l *Loop) executeToolCalls(
	ctx context.Context,
	in Input,
	calls []provider.ToolCall,
	owners map[string]string,
	allowSpawn bool,
) ([]provider.Message, error) {
	out := make([]provider.Message, 0, len(calls))
	for _, call := range calls {
		callID := call.ID
		if callID == "" {
			callID = core.MustNewID().String()
		}
		server, known := owners[call.Name]
		if !known {
			out = append(out, toolResultMessage(call, errs.McpToolNotFound("*", call.Name).Error()))
			continue
		}

		l.log.Emit(event.KindMcpInvoke, map[string]any{
			"task_id": in.TaskID, "call_id": callID, "tool": call.Name, "server": server, "params": call.Args,
		})

		var resultText string
		var cached bool
		var callErr error
		if call.Name == spawnAgentTool && allowSpawn {
			resultText, callErr = l.spawnAgent(ctx, in, call.Args)
		} else {
			resultText, cached, callErr = l.mcp.CallTool(ctx, server, call.Name, call.Args)
		}

		respData := map[string]any{
			"task_id": in.TaskID, "call_id": callID, "cached": cached,
		}
		if callErr != nil {
			respData["error"] = callErr.Error()
			l.log.Emit(event.KindMcpResponse, respData)
			out = append(out, toolResultMessage(call, callErr.Error()))
			continue
		}
		respData["result"] = resultText
		l.log.Emit(event.KindMcpResponse, respData)
		out = append(out, toolResultMessage(call, resultText))
	}
	return out, nil
}

func toolResultMessage(call provider.ToolCall, content string) provider.Message {
	return provider.Message{Role: provider.RoleTool, Content: content, ToolCallID: call.ID}
}

// spawnAgent builds a child Loop.Run at depth+1, inheriting the registry
// and provider, with max_turns capped to the caller-specified child limit.
// A depth-limit violation is never reached here (the caller only offers
// the tool when allowSpawn is true), but spawnAgent still enforces it
// defensively so a future caller can't bypass the check.
func (l *Loop) spawnAgent(ctx context.Context, in Input, args map[string]any) (string, error) {
	if in.Depth+1 >= in.Params.DepthLimit {
		return "", errs.DepthLimitReached(in.TaskID, in.Depth+1, in.Params.DepthLimit)
	}
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return "", errs.InvalidAgentParams(in.TaskID, "spawn_agent requires a prompt")
	}
	childMaxTurns := in.Params.MaxTurns
	if v, ok := args["max_turns"].(float64); ok && int(v) >= 1 && int(v) <= 100 {
		childMaxTurns = int(v)
	}
	childTaskID, _ := args["task_id"].(string)
	if childTaskID == "" {
		childTaskID = fmt.Sprintf("%s.spawn.%s", in.TaskID, core.MustNewID().String())
	}

	l.log.Emit(event.KindAgentSpawned, map[string]any{
		"task_id": in.TaskID, "child_task_id": childTaskID, "depth": in.Depth + 1,
	})

	childParams := in.Params
	childParams.Prompt = prompt
	childParams.MaxTurns = childMaxTurns

	child := Input{TaskID: childTaskID, Params: childParams, Provider: in.Provider, Depth: in.Depth + 1}
	res, err := l.Run(ctx, child)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(res.FinalOutput)
	if err != nil {
		return fmt.Sprintf("%v", res.FinalOutput), nil
	}
	return string(b), nil
}

// finalOutput renders the last assistant text as-is unless it parses as
// JSON on its own, in which case the parsed value is returned so a
// downstream `use` path can dot-walk into it (spec §9 design note).
func finalOutput(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return text
}
