// Package imageedit runs one product image edit end to end: cache lookup,
// prompt enhancement, generation with retries and fallback prompts, width
// check, post-processing and cache write.
package imageedit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"listify/internal/cache"
	"listify/internal/domain"
	"listify/internal/infra"
	"listify/internal/metrics"
	"listify/internal/providers/genai"
	"listify/internal/providers/prompt"
	"listify/internal/retry"
)

const (
	defaultMinWidth       = 500
	defaultEnhanceTimeout = 20 * time.Second
)

// Generator is the image model transport. genai.Client and mock.ImageGenerator
// implement it.
type Generator interface {
	EditImage(ctx context.Context, req genai.EditRequest) (*genai.EditResult, error)
}

type Options struct {
	Generator Generator
	Enhancer  prompt.Enhancer
	Cache     cache.Store
	Processor PostProcessor
	// Policy bounds the primary request. FallbackPolicy bounds each fallback
	// variant; its zero value makes a single attempt.
	Policy         retry.Policy
	FallbackPolicy retry.Policy
	Sleeper        retry.Sleeper
	// MinWidth rejects narrower results. Negative disables the check.
	MinWidth       int
	EnhanceTimeout time.Duration
	Defaults       OutputOptions
	Logger         *infra.Logger
	Metrics        *metrics.Metrics
}

type Client struct {
	generator      Generator
	enhancer       prompt.Enhancer
	cache          cache.Store
	processor      PostProcessor
	primary        *retry.Executor
	fallback       *retry.Executor
	minWidth       int
	enhanceTimeout time.Duration
	defaults       OutputOptions
	logger         *infra.Logger
	metrics        *metrics.Metrics
}

// EditRequest is one job. Image may be a data URL or bare base64; ImageData
// takes precedence when set.
type EditRequest struct {
	Image      string
	ImageData  []byte
	MIMEType   string
	Prompt     string
	Category   string
	Platform   string
	FeatureKey string
	RequestID  string
	Generation genai.GenerationOptions
	Output     *OutputOptions
}

// EnhancedPrompt records what the enhancer did with the instruction.
type EnhancedPrompt struct {
	Original    string `json:"original"`
	Enhanced    string `json:"enhanced,omitempty"`
	WasEnhanced bool   `json:"wasEnhanced"`
}

// Final is the instruction sent to the model.
func (p EnhancedPrompt) Final() string {
	if p.WasEnhanced {
		return p.Enhanced
	}
	return p.Original
}

type EditResult struct {
	Success        bool
	Image          []byte
	MIMEType       string
	ResponseText   string
	Message        string
	Cached         bool
	PromptEnhanced bool
	EnhancedPrompt string
	Variant        string
	Attempts       int
	Degraded       bool
	ErrorKind      retry.Kind
}

type cachedArtifact struct {
	Image          []byte `json:"image"`
	MIMEType       string `json:"mime_type"`
	ResponseText   string `json:"response_text,omitempty"`
	PromptEnhanced bool   `json:"prompt_enhanced"`
	EnhancedPrompt string `json:"enhanced_prompt,omitempty"`
}

type variant struct {
	name   string
	prompt string
	exec   *retry.Executor
}

func NewClient(opts Options) (*Client, error) {
	if opts.Generator == nil {
		return nil, errors.New("imageedit: generator is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	store := opts.Cache
	if store == nil {
		store = cache.NewMemory()
	}
	processor := opts.Processor
	if processor == nil {
		processor = NewProcessor(0)
	}
	minWidth := opts.MinWidth
	if minWidth == 0 {
		minWidth = defaultMinWidth
	}
	enhanceTimeout := opts.EnhanceTimeout
	if enhanceTimeout <= 0 {
		enhanceTimeout = defaultEnhanceTimeout
	}

	m := opts.Metrics
	executor := func(name string, p retry.Policy) *retry.Executor {
		return retry.New(p,
			retry.WithName(name),
			retry.WithLogger(*logger),
			retry.WithSleeper(opts.Sleeper),
			retry.WithObserver(func(a retry.Attempt) { m.RetryAttempt(name, string(a.Err.Kind)) }),
		)
	}

	return &Client{
		generator:      opts.Generator,
		enhancer:       opts.Enhancer,
		cache:          store,
		processor:      processor,
		primary:        executor("image."+variantPrimary, opts.Policy),
		fallback:       executor("image.fallback", opts.FallbackPolicy),
		minWidth:       minWidth,
		enhanceTimeout: enhanceTimeout,
		defaults:       opts.Defaults,
		logger:         logger,
		metrics:        m,
	}, nil
}

// EditImage never fails for provider reasons; those come back as
// Success=false. The error is reserved for invalid input and wraps
// domain.ErrInvalidInput.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*EditResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	img, mime, err := resolveImage(req)
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("request_id", req.RequestID).Str("category", req.Category).Logger()

	key := cache.Fingerprint(img, req.Prompt)
	if hit := c.lookup(ctx, key, &log); hit != nil {
		c.metrics.ImageEdit("cached")
		return hit, nil
	}

	enhanced := c.enhance(ctx, req, &log)
	final := enhanced.Final()

	variants := []variant{
		{name: variantPrimary, prompt: primaryPrompt(req.Category, req.Platform, final), exec: c.primary},
		{name: variantSimplified, prompt: simplifiedVariant(final), exec: c.fallback},
		{name: variantAlternative, prompt: alternativeVariant(final), exec: c.fallback},
	}

	result := &EditResult{PromptEnhanced: enhanced.WasEnhanced, EnhancedPrompt: enhanced.Enhanced}
	var generated *genai.EditResult
	var lastErr error
	for _, v := range variants {
		out, attempts, err := c.generate(ctx, v, genai.EditRequest{
			Image:     img,
			MIMEType:  mime,
			Options:   req.Generation,
			RequestID: req.RequestID,
		})
		result.Attempts += attempts
		c.metrics.ImageVariant(v.name, err == nil)
		if err == nil {
			generated = out
			result.Variant = v.name
			break
		}
		lastErr = err
		kind := retry.KindOf(err)
		log.Warn().Str("variant", v.name).Str("kind", string(kind)).Int("attempts", attempts).Err(err).Msg("imageedit: variant failed")
		if kind == retry.KindPolicy || kind == retry.KindCanceled || kind == retry.KindAuth || ctx.Err() != nil {
			break
		}
	}

	if generated == nil {
		result.ErrorKind = retry.KindOf(lastErr)
		result.Message = failureMessage(result.ErrorKind, lastErr)
		c.metrics.ImageEdit("failed")
		return result, nil
	}

	result.Success = true
	result.Image = generated.Image
	result.MIMEType = generated.MIMEType
	result.ResponseText = generated.Text
	result.Message = "image edited"

	output := c.defaults
	if req.Output != nil {
		output = *req.Output
	}
	if !output.IsZero() {
		processed, processedMIME, err := c.processor.Process(ctx, generated.Image, output)
		if err != nil {
			log.Warn().Err(err).Msg("imageedit: post-processing failed; returning generated image")
			result.Degraded = true
		} else {
			result.Image = processed
			result.MIMEType = processedMIME
		}
	}

	c.store(ctx, key, result, &log)
	c.metrics.ImageEdit("success")
	return result, nil
}

func (c *Client) generate(ctx context.Context, v variant, base genai.EditRequest) (*genai.EditResult, int, error) {
	base.Prompt = v.prompt
	calls := 0
	out, err := retry.Do(ctx, v.exec, func(ctx context.Context) (*genai.EditResult, error) {
		calls++
		start := time.Now()
		res, err := c.generator.EditImage(ctx, base)
		c.metrics.ProviderCall("image", err, time.Since(start))
		if err != nil {
			return nil, err
		}
		if res == nil || len(res.Image) == 0 {
			return nil, retry.Newf(retry.KindMissingPayload, "no image found in response")
		}
		if err := c.checkWidth(res.Image); err != nil {
			return nil, err
		}
		return res, nil
	})
	return out, calls, err
}

func (c *Client) checkWidth(data []byte) error {
	if c.minWidth < 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return retry.Fatal(retry.KindQuality, fmt.Errorf("unreadable image: %w", err))
	}
	if cfg.Width < c.minWidth {
		return retry.Newf(retry.KindQuality, "image width %dpx is below the %dpx minimum", cfg.Width, c.minWidth)
	}
	return nil
}

func (c *Client) enhance(ctx context.Context, req EditRequest, log *zerolog.Logger) EnhancedPrompt {
	ep := EnhancedPrompt{Original: req.Prompt}
	if c.enhancer == nil {
		return ep
	}
	ctx, cancel := context.WithTimeout(ctx, c.enhanceTimeout)
	defer cancel()

	res, err := safeEnhance(ctx, c.enhancer, prompt.EnhanceRequest{
		Instruction: req.Prompt,
		Category:    req.Category,
		Platform:    req.Platform,
		RequestID:   req.RequestID,
	})
	if err != nil {
		log.Warn().Err(err).Msg("imageedit: prompt enhancement failed; using original prompt")
		return ep
	}
	if res == nil || res.Provider == prompt.StaticProviderName {
		return ep
	}
	text := strings.TrimSpace(res.Text)
	if text == "" || text == strings.TrimSpace(req.Prompt) {
		return ep
	}
	ep.Enhanced = text
	ep.WasEnhanced = true
	return ep
}

func safeEnhance(ctx context.Context, e prompt.Enhancer, req prompt.EnhanceRequest) (res *prompt.EnhanceResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("enhancer panic: %v", r)
		}
	}()
	return e.Enhance(ctx, req)
}

func (c *Client) lookup(ctx context.Context, key string, log *zerolog.Logger) *EditResult {
	entry, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.metrics.CacheLookup("error")
		log.Warn().Err(err).Msg("imageedit: cache read failed")
		return nil
	}
	if !found {
		c.metrics.CacheLookup("miss")
		return nil
	}
	var art cachedArtifact
	if err := json.Unmarshal(entry.Artifact, &art); err != nil || len(art.Image) == 0 {
		c.metrics.CacheLookup("error")
		log.Warn().Err(err).Msg("imageedit: cache entry unreadable")
		return nil
	}
	c.metrics.CacheLookup("hit")
	return &EditResult{
		Success:        true,
		Image:          art.Image,
		MIMEType:       art.MIMEType,
		ResponseText:   art.ResponseText,
		Message:        "served from cache",
		Cached:         true,
		PromptEnhanced: art.PromptEnhanced,
		EnhancedPrompt: art.EnhancedPrompt,
	}
}

func (c *Client) store(ctx context.Context, key string, res *EditResult, log *zerolog.Logger) {
	raw, err := json.Marshal(cachedArtifact{
		Image:          res.Image,
		MIMEType:       res.MIMEType,
		ResponseText:   res.ResponseText,
		PromptEnhanced: res.PromptEnhanced,
		EnhancedPrompt: res.EnhancedPrompt,
	})
	if err == nil {
		err = c.cache.Set(ctx, key, raw)
	}
	if err != nil {
		log.Warn().Err(err).Msg("imageedit: cache write failed")
	}
}

func resolveImage(req EditRequest) ([]byte, string, error) {
	if len(req.ImageData) > 0 {
		mime := strings.TrimSpace(req.MIMEType)
		if mime == "" {
			mime = http.DetectContentType(req.ImageData)
		}
		if !strings.HasPrefix(mime, "image/") {
			return nil, "", fmt.Errorf("%w: payload is not an image (%s)", domain.ErrInvalidInput, mime)
		}
		return req.ImageData, mime, nil
	}
	return ParseDataURL(req.Image)
}

func failureMessage(kind retry.Kind, err error) string {
	switch kind {
	case retry.KindPolicy:
		return "the image model refused this request (content policy): " + errText(err)
	case retry.KindCanceled:
		return "request canceled"
	case retry.KindAuth:
		return "image provider rejected the credentials"
	default:
		return "no image found after all fallbacks: " + errText(err)
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	var classified *retry.Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return err.Error()
}
