package imageedit

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"listify/internal/providers/genai"
	"listify/internal/providers/prompt"
	"listify/internal/retry"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func noSleep(context.Context, time.Duration) error { return nil }

// fakeGenerator answers by prompt variant and records every prompt it saw.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(req genai.EditRequest) (*genai.EditResult, error)
}

func (g *fakeGenerator) EditImage(_ context.Context, req genai.EditRequest) (*genai.EditResult, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return g.respond(req)
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *fakeGenerator) callsFor(variant string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if variantOf(p) == variant {
			n++
		}
	}
	return n
}

func variantOf(p string) string {
	switch {
	case strings.HasPrefix(p, simplifiedPrompt):
		return variantSimplified
	case strings.HasPrefix(p, alternativePrompt):
		return variantAlternative
	default:
		return variantPrimary
	}
}

type enhancerFunc func(ctx context.Context, req prompt.EnhanceRequest) (*prompt.EnhanceResponse, error)

func (f enhancerFunc) Enhance(ctx context.Context, req prompt.EnhanceRequest) (*prompt.EnhanceResponse, error) {
	return f(ctx, req)
}

type failingProcessor struct{ calls int }

func (p *failingProcessor) Process(context.Context, []byte, OutputOptions) ([]byte, string, error) {
	p.calls++
	return nil, "", errors.New("encoder exploded")
}

func missing() (*genai.EditResult, error) {
	return nil, retry.Newf(retry.KindMissingPayload, "no image found in response")
}
