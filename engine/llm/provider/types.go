package provider

import "github.com/tmc/langchaingo/llms"

// Role is a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Message is one turn in a conversation, normalized across backends.
// ToolCalls is set on an assistant message that wants to call tools;
// ToolCallID is set on a tool-role message answering one of those calls.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	// Thinking carries extended-thinking/reasoning content on an assistant
	// message, when AgentParams.ExtendedThinking requested it and the
	// backend produced any. Empty for every backend that doesn't.
	Thinking string
}

// ToolSpec describes one callable tool offered to the model this turn.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StopReason normalizes why the model stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopError        StopReason = "error"
)

// Usage is the token accounting for one Chat/Infer call (spec §4.4:
// "usage{input_tokens, output_tokens, cache_read_tokens?, cost_usd?,
// ttft_ms?}"). CacheReadTokens, CostUSD, and TTFTMillis are zero when a
// backend doesn't report them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheReadTokens  int
	ThinkingTokens   int
	CostUSD          float64
	TTFTMillis       int64
}

// ChatResponse is one normalized model turn.
type ChatResponse struct {
	Message    Message
	StopReason StopReason
	Usage      Usage
	Model      string
}

func (m Message) toLangchain() llms.MessageContent {
	role := llms.ChatMessageTypeHuman
	switch m.Role {
	case RoleSystem:
		role = llms.ChatMessageTypeSystem
	case RoleAssistant:
		role = llms.ChatMessageTypeAI
	case RoleTool:
		role = llms.ChatMessageTypeTool
	}

	var parts []llms.ContentPart
	if m.Content != "" {
		parts = append(parts, llms.TextContent{Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, llms.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Name,
				Arguments: argsToJSON(tc.Args),
			},
		})
	}
	if m.Role == RoleTool {
		parts = append(parts, llms.ToolCallResponse{ToolCallID: m.ToolCallID, Content: m.Content})
	}
	return llms.MessageContent{Role: role, Parts: parts}
}

func toLangchainTools(tools []ToolSpec) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func fromLangchainChoice(choice *llms.ContentChoice, model, promptText string) *ChatResponse {
	msg := Message{Role: RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.FunctionCall.Name,
			Args: argsFromJSON(tc.FunctionCall.Arguments),
		})
	}

	stop := StopEndTurn
	if len(msg.ToolCalls) > 0 {
		stop = StopToolUse
	} else if choice.StopReason == "length" || choice.StopReason == "max_tokens" {
		stop = StopMaxTokens
	}

	usage := Usage{}
	if choice.GenerationInfo != nil {
		if v, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
			usage.PromptTokens = v
		}
		if v, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
			usage.CompletionTokens = v
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.TotalTokens == 0 {
		// Not every langchaingo backend populates GenerationInfo (ollama and
		// some OpenAI-compatible proxies don't); estimate from text so the
		// agent loop's token-budget stop condition still has something to
		// compare against.
		usage.PromptTokens = CountTokens(model, promptText)
		usage.CompletionTokens = CountTokens(model, choice.Content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.CostUSD, _ = EstimateCost(model, usage).Float64()

	return &ChatResponse{Message: msg, StopReason: stop, Usage: usage, Model: model}
}
