package imageedit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

const (
	FitContain = "contain"
	FitInside  = "inside"

	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWebP = "webp"

	defaultQuality = 90
	defaultWorkers = 4
)

// ErrUnsupportedFormat is returned for output formats the encoder cannot
// produce. WebP can be decoded but not encoded.
var ErrUnsupportedFormat = errors.New("imageedit: unsupported output format")

// OutputOptions describe the artifact returned to the caller. Zero width and
// height keep the generated size; an empty format keeps the source format.
type OutputOptions struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Fit     string `json:"fit,omitempty"`
}

func (o OutputOptions) IsZero() bool {
	return o.Width <= 0 && o.Height <= 0 && strings.TrimSpace(o.Format) == ""
}

// PostProcessor turns a generated image into the delivered artifact.
type PostProcessor interface {
	Process(ctx context.Context, data []byte, opts OutputOptions) ([]byte, string, error)
}

// Processor resizes and re-encodes images. Decoding and encoding run under
// a weighted semaphore so at most workers images are in flight.
type Processor struct {
	sem *semaphore.Weighted
}

func NewProcessor(workers int) *Processor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Processor{sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Processor) Process(ctx context.Context, data []byte, opts OutputOptions) ([]byte, string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer p.sem.Release(1)

	src, srcFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imageedit: decode: %w", err)
	}

	format, err := outputFormat(opts.Format, srcFormat)
	if err != nil {
		return nil, "", err
	}

	dst := resize(src, opts, format)

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, dst)
	case FormatJPEG:
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = defaultQuality
		}
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, "", fmt.Errorf("imageedit: encode %s: %w", format, err)
	}
	return buf.Bytes(), "image/" + format, nil
}

func outputFormat(requested, source string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "":
		if source == "jpeg" {
			return FormatJPEG, nil
		}
		return FormatPNG, nil
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case FormatWebP:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, FormatWebP)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, requested)
	}
}

// resize applies the fit policy. contain pads to exactly Width x Height;
// inside shrinks to fit within the box and never enlarges.
func resize(src image.Image, opts OutputOptions, format string) image.Image {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 || (opts.Width <= 0 && opts.Height <= 0) {
		return src
	}

	tw, th := opts.Width, opts.Height
	switch {
	case tw <= 0:
		tw = max(1, sw*th/sh)
	case th <= 0:
		th = max(1, sh*tw/sw)
	}

	scale := min(float64(tw)/float64(sw), float64(th)/float64(sh))
	fit := strings.ToLower(strings.TrimSpace(opts.Fit))
	if fit == FitInside && scale > 1 {
		scale = 1
	}
	w := max(1, int(float64(sw)*scale+0.5))
	h := max(1, int(float64(sh)*scale+0.5))

	if fit == FitInside || opts.Width <= 0 || opts.Height <= 0 {
		if w == sw && h == sh {
			return src
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
		return dst
	}

	canvas := image.NewRGBA(image.Rect(0, 0, tw, th))
	if format == FormatJPEG {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	offset := image.Pt((tw-w)/2, (th-h)/2)
	target := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(w, h))}
	draw.CatmullRom.Scale(canvas, target, src, sb, draw.Over, nil)
	return canvas
}

var _ PostProcessor = (*Processor)(nil)
