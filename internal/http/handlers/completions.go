package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"listify/internal/retry"
	"listify/internal/textgen"
)

// Completions handles POST /v1/ai/completions, the backend side of the
// proxy text channel.
func (a *App) Completions(w http.ResponseWriter, r *http.Request) {
	var req textgen.CompletionRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return
	}
	system, user := req.SystemAndUser()
	if strings.TrimSpace(user) == "" {
		a.error(w, http.StatusBadRequest, "invalid_input", "a user message is required")
		return
	}

	text, err := a.Text.Complete(r.Context(), textgen.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		JSON:         req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object",
	})
	if err != nil {
		kind := retry.KindOf(err)
		var cerr *textgen.CompletionError
		if errors.As(err, &cerr) {
			kind = cerr.Kind
		}
		a.logger().Warn().Err(err).Str("kind", string(kind)).Msg("completion failed")
		var last *retry.Error
		if errors.As(err, &last) && last.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(last.RetryAfter.Seconds()))))
		}
		a.error(w, completionStatus(kind), string(kind), "completion failed")
		return
	}

	a.json(w, http.StatusOK, textgen.CompletionResponse{Choices: []textgen.Choice{{
		Message:      textgen.Message{Role: "assistant", Content: text},
		FinishReason: "stop",
	}}})
}

// completionStatus keeps the retry class of the upstream failure visible to
// the proxy channel on the other side: 4xx for failures that must not be
// retried, 429 and 5xx for the rest.
func completionStatus(kind retry.Kind) int {
	switch kind {
	case retry.KindAuth:
		return http.StatusUnauthorized
	case retry.KindRateLimited:
		return http.StatusTooManyRequests
	case retry.KindTimeout, retry.KindNetwork:
		return http.StatusGatewayTimeout
	case retry.KindServer, retry.KindMissingPayload, retry.KindGeneration:
		return http.StatusBadGateway
	case retry.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}
