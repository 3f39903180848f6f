package relay

import (
	"context"
	"net/http"

	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/history"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to any OpenAI-compatible chat endpoint, OpenRouter
// by default.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(cfg config.RelayConfig) *OpenAICompleter {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAICompleter{client: openai.NewClientWithConfig(c), model: cfg.Model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, messages []history.Message) (Completion, error) {
	conv := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		conv = append(conv, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: conv,
	})
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrInvalidResponse
	}
	return Completion{
		Content: resp.Choices[0].Message.Content,
		Tokens:  resp.Usage.TotalTokens,
	}, nil
}
