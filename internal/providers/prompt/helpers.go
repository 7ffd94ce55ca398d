package prompt

import (
	"context"
	"fmt"
	"strings"
)

const (
	StaticProviderName = "static"
	GeminiProviderName = "gemini"
	OpenAIProviderName = "openai"
)

const enhanceSystemPrompt = "You rewrite product photo editing instructions for an image model. " +
	"Keep the seller's intent, make it specific about lighting, background, framing and realism, and never invent product details. " +
	`Respond strictly with JSON matching {"enhanced_prompt": string}.`

func buildEnhancePrompt(req EnhanceRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Instruction: %q\n", strings.TrimSpace(req.Instruction))
	if c := strings.TrimSpace(req.Category); c != "" {
		fmt.Fprintf(sb, "Product category: %s\n", c)
	}
	if p := strings.TrimSpace(req.Platform); p != "" {
		fmt.Fprintf(sb, "Marketplace: %s\n", p)
	}
	sb.WriteString("Return one improved instruction under 120 words.")
	return sb.String()
}

// fallbackChain hands a failed request to the configured fallback, or to the
// static enhancer, and tags the response with the reason.
type fallbackChain struct {
	fallback   Enhancer
	onFallback func(reason string, err error)
}

func (f fallbackChain) use(ctx context.Context, req EnhanceRequest, reason string, cause error) (*EnhanceResponse, error) {
	if f.onFallback != nil {
		f.onFallback(reason, cause)
	}
	next := f.fallback
	if next == nil {
		next = NewStaticEnhancer()
	}
	res, err := next.Enhance(ctx, req)
	if res != nil {
		if res.Provider == "" {
			res.Provider = StaticProviderName
		}
		if res.Metadata == nil {
			res.Metadata = map[string]string{}
		}
		if reason != "" {
			res.Metadata["fallback_reason"] = reason
		}
	}
	return res, err
}
