package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// mockLLM is a deterministic stand-in for a real backend, used by workflow
// and agent-loop tests that need predictable model output without network
// access.
type mockLLM struct {
	model string
}

func newMockLLM(model string) *mockLLM {
	return &mockLLM{model: model}
}

func (m *mockLLM) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	var prompt string
	for _, message := range messages {
		if message.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range message.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				prompt = tc.Text
			}
		}
	}

	text := "mock agent response: task completed successfully"
	if prompt != "" {
		text = fmt.Sprintf("mock response for: %s", prompt)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}, nil
}

func (m *mockLLM) Call(_ context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return fmt.Sprintf("mock response for: %s", prompt), nil
}
