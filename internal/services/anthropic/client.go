package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"layerforge/internal/services/llm"
)

const defaultMaxTokens = 4000

// MessagesClient is the subset of the SDK used here. *sdk.MessageService
// satisfies it; tests pass a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client completes prompts through the Anthropic Messages API.
type Client struct {
	msg   MessagesClient
	model string
}

// New wraps an existing Messages client.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Client{msg: msg, model: strings.TrimSpace(defaultModel)}, nil
}

// NewFromAPIKey builds a client over the SDK's HTTP transport. An empty
// baseURL keeps the SDK default.
func NewFromAPIKey(apiKey, baseURL, defaultModel string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	ac := sdk.NewClient(opts...)
	return New(&ac.Messages, defaultModel)
}

// Model returns the default model of the client.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the prompt as a single user message.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return llm.Completion{}, errors.New("anthropic: prompt required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return llm.Completion{}, errors.New("anthropic: model identifier is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		MaxTokens:   int64(maxTokens),
		Model:       sdk.Model(model),
		Temperature: sdk.Float(req.Temperature),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translate(msg, model)
}

func translate(msg *sdk.Message, requested string) (llm.Completion, error) {
	if msg == nil {
		return llm.Completion{}, errors.New("anthropic: response message is nil")
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return llm.Completion{}, fmt.Errorf("anthropic: stop_reason=%q: %w", msg.StopReason, llm.ErrEmptyContent)
	}
	model := string(msg.Model)
	if model == "" {
		model = requested
	}
	return llm.Completion{
		Text:         text,
		Model:        model,
		FinishReason: string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
