// Package mock provides canned providers for MOCK_MODE and local development.
package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"sync/atomic"

	"listify/internal/providers/genai"
	"listify/internal/retry"
)

const (
	defaultWidth  = 1024
	defaultHeight = 1024
)

// ImageGenerator returns a deterministic striped PNG for every request.
type ImageGenerator struct {
	Width  int
	Height int
	calls  atomic.Int64
}

func NewImageGenerator() *ImageGenerator {
	return &ImageGenerator{Width: defaultWidth, Height: defaultHeight}
}

// Calls reports how many requests were served.
func (g *ImageGenerator) Calls() int64 { return g.calls.Load() }

func (g *ImageGenerator) EditImage(ctx context.Context, req genai.EditRequest) (*genai.EditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, retry.Classify(err)
	}
	if len(req.Image) == 0 {
		return nil, retry.Newf(retry.KindBadInput, "image payload is empty")
	}
	g.calls.Add(1)
	seed := deterministicSeed(req.Prompt, len(req.Image), sha256.Sum256(req.Image))
	data := renderSyntheticImage(g.Width, g.Height, seed)
	if data == nil {
		return nil, retry.Newf(retry.KindGeneration, "synthetic render failed")
	}
	return &genai.EditResult{
		Image:        data,
		MIMEType:     "image/png",
		Text:         "Mock edit for seed " + seed,
		FinishReason: "STOP",
	}, nil
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(32, height/12)
	for y := 0; y < height; y += stripe * 2 {
		band := image.Rect(0, y, width, min(height, y+stripe))
		draw.Draw(img, band, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
