package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listify/internal/retry"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:     "sk-test",
		BaseURL:    "https://llm.test/v1",
		Model:      "deepseek-chat",
		MaxTokens:  512,
		HTTPClient: &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestChatSendsMessages(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		assert.Equal(t, 512, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)
		assert.Equal(t, "Cast on 20 stitches", body.Messages[1].Content)

		return respond(200, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" tidy pattern "},"finish_reason":"stop"}]}`), nil
	})

	text, err := client.Chat(context.Background(), ChatRequest{System: "You are an editor", User: "Cast on 20 stitches"})
	require.NoError(t, err)
	assert.Equal(t, "tidy pattern", text)
}

func TestChatClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   retry.Kind
	}{
		{"empty choices", 200, `{"choices":[]}`, retry.KindMissingPayload},
		{"blank content", 200, `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`, retry.KindMissingPayload},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"rate_limit"}}`, retry.KindRateLimited},
		{"server", 502, `{"error":{"message":"bad gateway"}}`, retry.KindServer},
		{"auth", 401, `{"error":{"message":"invalid key"}}`, retry.KindAuth},
		{"server html", 503, `<html>down</html>`, retry.KindServer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(*http.Request) (*http.Response, error) {
				return respond(tc.status, tc.body), nil
			})
			_, err := client.Chat(context.Background(), ChatRequest{User: "hi"})
			require.Error(t, err)
			assert.Equal(t, tc.kind, retry.KindOf(err))
		})
	}
}
