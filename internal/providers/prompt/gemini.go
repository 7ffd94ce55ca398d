package prompt

import (
	"context"
	"errors"
	"strings"

	"listify/internal/domain/jsoncfg"
	"listify/internal/providers/genai"
	"listify/internal/retry"
)

type GeminiOptions struct {
	Client     *genai.Client
	Fallback   Enhancer
	OnFallback func(reason string, err error)
}

// GeminiEnhancer rewrites instructions with a Gemini text model. Every
// failure is answered by the fallback chain; Enhance itself makes one call.
type GeminiEnhancer struct {
	client *genai.Client
	chain  fallbackChain
}

func NewGeminiEnhancer(opts GeminiOptions) (*GeminiEnhancer, error) {
	if opts.Client == nil {
		return nil, errors.New("gemini client is required")
	}
	return &GeminiEnhancer{
		client: opts.Client,
		chain:  fallbackChain{fallback: opts.Fallback, onFallback: opts.OnFallback},
	}, nil
}

func (g *GeminiEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return g.chain.use(ctx, req, "empty_instruction", nil)
	}
	temperature := 0.5
	text, err := g.client.GenerateText(ctx, genai.TextRequest{
		System:    enhanceSystemPrompt,
		Prompt:    buildEnhancePrompt(req),
		JSON:      true,
		Options:   genai.GenerationOptions{Temperature: &temperature},
		RequestID: req.RequestID,
	})
	if err != nil {
		return g.chain.use(ctx, req, "request_"+string(retry.KindOf(err)), err)
	}
	parsed, err := jsoncfg.Decode[jsoncfg.EnhancedPrompt](text)
	if err != nil {
		return g.chain.use(ctx, req, "parse_payload", err)
	}
	enhanced := strings.TrimSpace(parsed.Prompt)
	if enhanced == "" {
		return g.chain.use(ctx, req, "empty_response", errors.New("empty enhanced_prompt"))
	}
	return &EnhanceResponse{
		Text:     enhanced,
		Metadata: map[string]string{"model": g.client.Model()},
		Provider: GeminiProviderName,
	}, nil
}

var _ Enhancer = (*GeminiEnhancer)(nil)
