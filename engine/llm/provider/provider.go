// Package provider implements the engine's provider abstraction (nika spec
// §4.5, component C5): one normalized Chat/Infer surface over langchaingo's
// per-vendor backends, plus token counting and cost accounting.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Name identifies a backend; it also selects the tiktoken encoding and
// pricing table entry used for usage accounting.
type Name string

const (
	OpenAI    Name = "openai"
	Groq      Name = "groq"
	Anthropic Name = "anthropic"
	Google    Name = "google"
	Ollama    Name = "ollama"
	DeepSeek  Name = "deepseek"
	XAI       Name = "xai"
	Mock      Name = "mock"
)

// Config selects and authenticates a backend. A Document's top-level
// provider/model (or a task's infer/agent override) resolves to one of
// these before the engine builds a Client.
type Config struct {
	Provider     Name
	Model        string
	APIKey       string
	APIURL       string
	Organization string
	MaxTokens    int32
	Temperature  float64
}

func (c *Config) build() (llms.Model, error) {
	switch c.Provider {
	case OpenAI:
		return c.buildOpenAICompatible("")
	case Groq:
		return c.buildOpenAICompatible("https://api.groq.com/openai/v1")
	case DeepSeek:
		return c.buildOpenAICompatible("https://api.deepseek.com/v1")
	case XAI:
		return c.buildOpenAICompatible("https://api.x.ai/v1")
	case Anthropic:
		opts := []anthropic.Option{anthropic.WithModel(c.Model)}
		if c.APIKey != "" {
			opts = append(opts, anthropic.WithToken(c.APIKey))
		}
		return anthropic.New(opts...)
	case Google:
		opts := []googleai.Option{googleai.WithDefaultModel(c.Model)}
		if c.APIKey != "" {
			opts = append(opts, googleai.WithAPIKey(c.APIKey))
		}
		return googleai.New(context.Background(), opts...)
	case Ollama:
		opts := []ollama.Option{ollama.WithModel(c.Model)}
		if c.APIURL != "" {
			opts = append(opts, ollama.WithServerURL(c.APIURL))
		}
		return ollama.New(opts...)
	case Mock:
		return newMockLLM(c.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
	}
}

func (c *Config) buildOpenAICompatible(defaultBaseURL string) (llms.Model, error) {
	baseURL := defaultBaseURL
	if c.APIURL != "" {
		baseURL = c.APIURL
	}
	opts := []openai.Option{openai.WithModel(c.Model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if c.APIKey != "" {
		opts = append(opts, openai.WithToken(c.APIKey))
	}
	if c.Organization != "" {
		opts = append(opts, openai.WithOrganization(c.Organization))
	}
	return openai.New(opts...)
}

// Client is a normalized handle to one backend/model pair.
type Client struct {
	cfg Config
	llm llms.Model
}

// New builds a Client for cfg, constructing the underlying langchaingo
// backend.
func New(cfg Config) (*Client, error) {
	llm, err := cfg.build()
	if err != nil {
		return nil, fmt.Errorf("build provider %s: %w", cfg.Provider, err)
	}
	return &Client{cfg: cfg, llm: llm}, nil
}

// Model returns the configured model name, used for token counting and
// pricing lookups.
func (c *Client) Model() string { return c.cfg.Model }

// Infer runs a single-shot completion: one human-role message in, one
// response out. It is the backing call for the infer task verb.
func (c *Client) Infer(ctx context.Context, prompt string) (*ChatResponse, error) {
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, nil)
}

// Chat runs one model turn over messages, optionally offering tools. It is
// the backing call for the agent loop's per-turn model invocation.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*ChatResponse, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, m.toLangchain())
	}

	opts := []llms.CallOption{}
	if c.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(c.cfg.MaxTokens)))
	}
	if c.cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.cfg.Temperature))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLangchainTools(tools)))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider %s returned no choices", c.cfg.Provider)
	}

	var promptText strings.Builder
	for _, m := range messages {
		promptText.WriteString(m.Content)
	}
	return fromLangchainChoice(resp.Choices[0], c.Model(), promptText.String()), nil
}
