// Package openai talks to OpenAI-compatible chat completion APIs (OpenAI,
// DeepSeek, OpenRouter) through go-openai.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"listify/internal/infra"
	"listify/internal/ratelimit"
	"listify/internal/retry"
)

const (
	defaultBaseURL   = "https://api.deepseek.com/v1"
	defaultModel     = "deepseek-chat"
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
)

type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	MaxTokens    int
	Timeout      time.Duration
	HTTPClient   *http.Client
	Limiter      *ratelimit.Limiter
	Logger       *infra.Logger
}

type Client struct {
	api       *goopenai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	limiter   *ratelimit.Limiter
	logger    *infra.Logger
}

// ChatRequest is a single system+user exchange. Empty Model and zero
// MaxTokens use the client defaults.
type ChatRequest struct {
	System      string
	User        string
	Model       string
	MaxTokens   int
	Temperature float32
	JSON        bool
}

var ErrMissingAPIKey = errors.New("openai: api key is required")

func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.OrgID = strings.TrimSpace(opts.Organization)
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		api:       goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		limiter:   opts.Limiter,
		logger:    logger,
	}, nil
}

func (c *Client) Model() string { return c.model }

// Chat returns the first choice's content. Empty choices or blank content
// are reported as retry.KindMissingPayload.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", retry.Classify(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var messages []goopenai.ChatCompletionMessage
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.User})

	body := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, body)
	if err != nil {
		classified := Classify(err)
		c.logger.Debug().
			Str("model", model).
			Str("kind", string(classified.Kind)).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("openai: chat completion failed")
		return "", classified
	}
	if len(resp.Choices) == 0 {
		return "", retry.Newf(retry.KindMissingPayload, "openai: response has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", retry.Newf(retry.KindMissingPayload, "openai: empty completion (finish_reason=%s)", resp.Choices[0].FinishReason)
	}
	c.logger.Debug().
		Str("model", model).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("openai: chat completion")
	return text, nil
}

// Classify maps go-openai errors onto retry kinds.
func Classify(err error) *retry.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		e := retry.FromStatus(apiErr.HTTPStatusCode, "openai: "+apiErr.Message, "")
		e.Err = err
		return e
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		e := retry.FromStatus(reqErr.HTTPStatusCode, "openai: "+reqErr.Error(), "")
		e.Err = err
		return e
	}
	return retry.Classify(err)
}
