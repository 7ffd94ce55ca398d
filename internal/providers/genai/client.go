package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"listify/internal/infra"
	"listify/internal/ratelimit"
	"listify/internal/retry"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash-image-preview"
	defaultTimeout = 120 * time.Second

	maxErrorBody = 1 << 20
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Logger     *infra.Logger
}

// Client calls generateContent for one model. Every error it returns is a
// *retry.Error.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *infra.Logger
}

// GenerationOptions are passed through to generationConfig. Nil fields are omitted.
type GenerationOptions struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
}

// EditRequest asks the model to transform one image.
type EditRequest struct {
	Prompt    string
	Image     []byte
	MIMEType  string
	Options   GenerationOptions
	RequestID string
}

// EditResult carries the first image returned and all text parts joined.
type EditResult struct {
	Image        []byte
	MIMEType     string
	Text         string
	FinishReason string
}

// TextRequest asks for a plain text (or JSON) completion.
type TextRequest struct {
	System    string
	Prompt    string
	JSON      bool
	Options   GenerationOptions
	RequestID string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	GenerationOptions
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content       *geminiContent `json:"content,omitempty"`
	FinishReason  string         `json:"finishReason,omitempty"`
	FinishMessage string         `json:"finishMessage,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason        string `json:"blockReason,omitempty"`
	BlockReasonMessage string `json:"blockReasonMessage,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay,omitempty"`
		} `json:"details,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one is created without its own timeout because every
// call already carries a deadline.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: client,
		limiter:    opts.Limiter,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// EditImage sends the prompt and image and returns the generated image.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*EditResult, error) {
	if len(req.Image) == 0 {
		return nil, retry.Newf(retry.KindBadInput, "image payload is empty")
	}
	mime := strings.TrimSpace(req.MIMEType)
	if mime == "" {
		mime = http.DetectContentType(req.Image)
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			GenerationOptions:  req.Options,
			CandidateCount:     1,
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, payload, &response); err != nil {
		return nil, err
	}

	result, err := interpretImageResponse(response)
	if err != nil {
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("model", c.model).
			Err(err).
			Msg("genai: image response rejected")
		return nil, err
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Int("bytes", len(result.Image)).
		Msg("genai: image generated")
	return result, nil
}

// GenerateText returns the concatenated text of the first candidate.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			GenerationOptions: req.Options,
			CandidateCount:    1,
		},
	}
	if strings.TrimSpace(req.System) != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.JSON {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, payload, &response); err != nil {
		return "", err
	}
	if err := promptBlocked(response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", retry.Newf(retry.KindMissingPayload, "gemini returned no candidates")
	}
	candidate := response.Candidates[0]
	if err := checkFinishReason(candidate); err != nil {
		return "", err
	}
	text := strings.TrimSpace(joinText(candidate))
	if text == "" {
		return "", retry.Newf(retry.KindMissingPayload, "gemini returned empty text")
	}
	return text, nil
}

func interpretImageResponse(response geminiGenerateContentResponse) (*EditResult, error) {
	if err := promptBlocked(response); err != nil {
		return nil, err
	}
	if len(response.Candidates) == 0 {
		return nil, retry.Newf(retry.KindMissingPayload, "gemini returned no candidates")
	}

	result := &EditResult{FinishReason: response.Candidates[0].FinishReason}
	var texts []string
	for _, candidate := range response.Candidates {
		if t := joinText(candidate); t != "" {
			texts = append(texts, t)
		}
		if result.Image != nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, retry.Retryable(retry.KindMissingPayload, fmt.Errorf("decode inline data: %w", err))
			}
			result.Image = data
			result.MIMEType = part.InlineData.MimeType
			break
		}
	}
	result.Text = strings.Join(texts, "\n")

	if err := checkFinishReason(response.Candidates[0]); err != nil {
		return nil, err
	}
	if len(result.Image) == 0 {
		msg := "no image found in response"
		if result.Text != "" {
			msg += ": " + truncate(result.Text, 200)
		}
		return nil, retry.Newf(retry.KindMissingPayload, "%s", msg)
	}
	if result.MIMEType == "" {
		result.MIMEType = http.DetectContentType(result.Image)
	}
	return result, nil
}

func promptBlocked(response geminiGenerateContentResponse) error {
	if response.PromptFeedback == nil || response.PromptFeedback.BlockReason == "" {
		return nil
	}
	msg := "prompt blocked: " + response.PromptFeedback.BlockReason
	if detail := strings.TrimSpace(response.PromptFeedback.BlockReasonMessage); detail != "" {
		msg += " (" + detail + ")"
	}
	return retry.Newf(retry.KindPolicy, "%s", msg)
}

var policyFinishReasons = map[string]struct{}{
	"SAFETY":                   {},
	"PROHIBITED_CONTENT":       {},
	"BLOCKLIST":                {},
	"SPII":                     {},
	"RECITATION":               {},
	"IMAGE_SAFETY":             {},
	"IMAGE_PROHIBITED_CONTENT": {},
	"IMAGE_RECITATION":         {},
}

func checkFinishReason(candidate geminiCandidate) error {
	reason := strings.ToUpper(strings.TrimSpace(candidate.FinishReason))
	if reason == "" || reason == "STOP" {
		return nil
	}
	msg := "generation finished with " + reason
	if detail := strings.TrimSpace(candidate.FinishMessage); detail != "" {
		msg += ": " + detail
	}
	if _, ok := policyFinishReasons[reason]; ok {
		return retry.Newf(retry.KindPolicy, "%s", msg)
	}
	return retry.Newf(retry.KindGeneration, "%s", msg)
}

func joinText(candidate geminiCandidate) string {
	if candidate.Content == nil {
		return ""
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if t := strings.TrimSpace(part.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) invokeGemini(ctx context.Context, payload any, out *geminiGenerateContentResponse) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Classify(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Fatal(retry.KindBadInput, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Fatal(retry.KindBadInput, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Classify(fmt.Errorf("invoke gemini: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return retry.Classify(ctxErr)
		}
		return retry.Retryable(retry.KindMissingPayload, fmt.Errorf("decode gemini response: %w", err))
	}
	if out.Candidates == nil && out.PromptFeedback == nil {
		return retry.Newf(retry.KindMissingPayload, "gemini response has neither candidates nor promptFeedback")
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(data))
	var apiErr geminiErrorResponse
	var retryDelay string
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		for _, d := range apiErr.Error.Details {
			if d.RetryDelay != "" {
				retryDelay = d.RetryDelay
				break
			}
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	e := retry.FromStatus(resp.StatusCode, "gemini: "+message, resp.Header.Get("Retry-After"))
	if e.RetryAfter == 0 && retryDelay != "" && e.Kind.Retryable() {
		e.RetryAfter = retry.ParseRetryAfter(retryDelay, time.Now())
	}
	return e
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
