package textgen

import (
	"context"

	"listify/internal/providers/openai"
)

// Chatter is the subset of *openai.Client the direct channel needs.
type Chatter interface {
	Chat(ctx context.Context, req openai.ChatRequest) (string, error)
}

// DirectChannel calls the provider API directly.
type DirectChannel struct {
	client Chatter
}

// NewDirectChannel returns nil for a nil client.
func NewDirectChannel(client Chatter) *DirectChannel {
	if client == nil {
		return nil
	}
	if c, ok := client.(*openai.Client); ok && c == nil {
		return nil
	}
	return &DirectChannel{client: client}
}

func (d *DirectChannel) Name() string { return "direct" }

func (d *DirectChannel) Complete(ctx context.Context, req Request) (string, error) {
	return d.client.Chat(ctx, openai.ChatRequest{
		System:    req.SystemPrompt,
		User:      req.UserPrompt,
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		JSON:      req.JSON,
	})
}
