package prompt

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EnhanceRequest carries the user instruction and the listing context used
// to rewrite it.
type EnhanceRequest struct {
	Instruction string
	Category    string
	Platform    string
	RequestID   string
}

type EnhanceResponse struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Provider string            `json:"-"`
}

type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error)
}

// StaticEnhancer returns the instruction unchanged. It is the fallback of
// every model-backed enhancer.
type StaticEnhancer struct{}

func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

func (s *StaticEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	meta := map[string]string{}
	if category := strings.TrimSpace(req.Category); category != "" {
		meta["category"] = cases.Title(language.Und).String(strings.ReplaceAll(category, "_", " "))
	}
	if platform := strings.TrimSpace(req.Platform); platform != "" {
		meta["platform"] = strings.ToLower(platform)
	}
	return &EnhanceResponse{
		Text:     req.Instruction,
		Metadata: meta,
		Provider: StaticProviderName,
	}, nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
