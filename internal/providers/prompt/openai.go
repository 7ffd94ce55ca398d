package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listify/internal/domain/jsoncfg"
	"listify/internal/providers/openai"
	"listify/internal/retry"
)

type OpenAIOptions struct {
	Client     *openai.Client
	Fallback   Enhancer
	OnFallback func(reason string, err error)
}

type OpenAIEnhancer struct {
	client *openai.Client
	chain  fallbackChain
}

func NewOpenAIEnhancer(opts OpenAIOptions) (*OpenAIEnhancer, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	return &OpenAIEnhancer{
		client: opts.Client,
		chain:  fallbackChain{fallback: opts.Fallback, onFallback: opts.OnFallback},
	}, nil
}

func (o *OpenAIEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return o.chain.use(ctx, req, "empty_instruction", nil)
	}
	text, err := o.client.Chat(ctx, openai.ChatRequest{
		System:      enhanceSystemPrompt,
		User:        buildEnhancePrompt(req),
		Temperature: 0.6,
		JSON:        true,
	})
	if err != nil {
		reason := "http_request"
		var classified *retry.Error
		if errors.As(err, &classified) && classified.StatusCode > 0 {
			reason = fmt.Sprintf("http_%d", classified.StatusCode)
		} else if retry.KindOf(err) == retry.KindMissingPayload {
			reason = "empty_response"
		}
		return o.chain.use(ctx, req, reason, err)
	}
	parsed, err := jsoncfg.Decode[jsoncfg.EnhancedPrompt](text)
	if err != nil {
		return o.chain.use(ctx, req, "parse_payload", err)
	}
	enhanced := strings.TrimSpace(parsed.Prompt)
	if enhanced == "" {
		return o.chain.use(ctx, req, "empty_response", errors.New("empty enhanced_prompt"))
	}
	return &EnhanceResponse{
		Text:     enhanced,
		Metadata: map[string]string{"model": o.client.Model()},
		Provider: OpenAIProviderName,
	}, nil
}

var _ Enhancer = (*OpenAIEnhancer)(nil)
