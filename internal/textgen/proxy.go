package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"listify/internal/ratelimit"
	"listify/internal/retry"
)

const (
	defaultProxyTimeout = 60 * time.Second
	defaultMaxTokens    = 2048
	completionsPath     = "/v1/ai/completions"
	maxErrorBody        = 4 << 10
)

// Message is one chat turn on the completions wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// CompletionRequest is the body accepted by the backend completions endpoint.
type CompletionRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type CompletionResponse struct {
	Choices []Choice `json:"choices"`
}

// SystemAndUser splits the wire messages back into prompts. Multiple turns
// of the same role are joined with blank lines.
func (r CompletionRequest) SystemAndUser() (string, string) {
	var system, user []string
	for _, m := range r.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, m.Content)
		default:
			user = append(user, m.Content)
		}
	}
	return strings.Join(system, "\n\n"), strings.Join(user, "\n\n")
}

type apiErrorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type ProxyOptions struct {
	BaseURL    string
	Token      string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
}

// ProxyChannel calls the authenticated backend completions endpoint.
type ProxyChannel struct {
	endpoint  string
	token     string
	model     string
	maxTokens int
	timeout   time.Duration
	http      *http.Client
	limiter   *ratelimit.Limiter
}

// NewProxyChannel returns nil when no base URL is configured.
func NewProxyChannel(opts ProxyOptions) *ProxyChannel {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProxyTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ProxyChannel{
		endpoint:  base + completionsPath,
		token:     strings.TrimSpace(opts.Token),
		model:     strings.TrimSpace(opts.Model),
		maxTokens: maxTokens,
		timeout:   timeout,
		http:      client,
		limiter:   opts.Limiter,
	}
}

func (p *ProxyChannel) Name() string { return "proxy" }

func (p *ProxyChannel) Complete(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", retry.Classify(err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body := CompletionRequest{
		Model:     firstNonEmpty(req.Model, p.model),
		MaxTokens: req.MaxTokens,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = p.maxTokens
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		body.Messages = append(body.Messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, Message{Role: "user", Content: req.UserPrompt})
	if req.JSON {
		body.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Fatal(retry.KindBadInput, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Fatal(retry.KindBadInput, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", retry.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		classified := retry.FromStatus(resp.StatusCode, proxyErrorMessage(resp.StatusCode, raw), resp.Header.Get("Retry-After"))
		if kind := envelopeKind(raw); kind != "" && kind.Retryable() == classified.Kind.Retryable() {
			classified.Kind = kind
		}
		return "", classified
	}

	var decoded CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", retry.Classify(ctxErr)
		}
		return "", retry.Retryable(retry.KindMissingPayload, fmt.Errorf("decode proxy response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return "", retry.Newf(retry.KindMissingPayload, "proxy response has no choices")
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", retry.Newf(retry.KindMissingPayload, "proxy response has empty content")
	}
	return text, nil
}

// envelopeKind reads the error code of a backend error envelope when it names
// a known kind.
func envelopeKind(raw []byte) retry.Kind {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == nil {
		return ""
	}
	kind := retry.Kind(body.Error.Code)
	switch kind {
	case retry.KindTimeout, retry.KindRateLimited, retry.KindServer, retry.KindNetwork,
		retry.KindMissingPayload, retry.KindGeneration, retry.KindBadInput, retry.KindPolicy,
		retry.KindAuth, retry.KindQuality, retry.KindFatal:
		return kind
	}
	return ""
}

func proxyErrorMessage(status int, raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != nil && body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
