package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragpipe/internal/llm"
)

// Client talks to any OpenAI-compatible chat completions API (OpenAI, Groq, vLLM).
type Client struct {
	client   *openai.Client
	model    string
	defaults llm.Options
}

var _ llm.Client = (*Client)(nil)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai client requires an API key")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		conf.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		client:   openai.NewClientWithConfig(conf),
		model:    cfg.Model,
		defaults: llm.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
	}, nil
}

func (c *Client) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.Apply(c.defaults, opts...)
	model := c.model
	if o.Model != "" {
		model = o.Model
	}

	msgs := make([]openai.ChatCompletionMessage, len(history))
	for i, m := range history {
		role := m.Role
		if role == "model" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(o.Temperature),
		MaxTokens:   o.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return c.Chat(ctx, []llm.Message{{Role: openai.ChatMessageRoleUser, Content: prompt}}, opts...)
}
