// Package textgen completes system+user prompts through a primary channel
// (the authenticated backend proxy) and falls back to a direct provider
// channel when the primary is exhausted.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"listify/internal/infra"
	"listify/internal/metrics"
	"listify/internal/retry"
)

const defaultNetworkMultiplier = 2

// Request is a single completion. Empty Model and zero MaxTokens fall back to
// the channel defaults.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	JSON         bool
}

// Channel is one way of reaching a completion model. Implementations return
// classified *retry.Error values and treat empty completions as
// retry.KindMissingPayload.
type Channel interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

var ErrNoChannel = errors.New("textgen: no completion channel configured")

// CompletionError is returned once every channel is exhausted.
type CompletionError struct {
	Kind     retry.Kind
	Endpoint string
	Attempts int
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("textgen: completion failed via %s after %d attempts (%s): %v", e.Endpoint, e.Attempts, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

type Options struct {
	Primary   Channel
	Secondary Channel
	// PrimaryPolicy defaults its NetworkMultiplier to 2 so network-class
	// failures back off faster than generic ones.
	PrimaryPolicy   retry.Policy
	SecondaryPolicy retry.Policy
	Sleeper         retry.Sleeper
	Logger          *infra.Logger
	Metrics         *metrics.Metrics
}

type lane struct {
	channel Channel
	exec    *retry.Executor
}

type Client struct {
	lanes   []lane
	logger  *infra.Logger
	metrics *metrics.Metrics
}

func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	m := opts.Metrics

	primary := opts.PrimaryPolicy
	if primary.NetworkMultiplier == 0 {
		primary.NetworkMultiplier = defaultNetworkMultiplier
	}

	c := &Client{logger: logger, metrics: m}
	add := func(ch Channel, p retry.Policy) {
		if isNil(ch) {
			return
		}
		name := "text." + ch.Name()
		c.lanes = append(c.lanes, lane{
			channel: ch,
			exec: retry.New(p,
				retry.WithName(name),
				retry.WithLogger(*logger),
				retry.WithSleeper(opts.Sleeper),
				retry.WithObserver(func(a retry.Attempt) { m.RetryAttempt(name, string(a.Err.Kind)) }),
			),
		})
	}
	add(opts.Primary, primary)
	add(opts.Secondary, opts.SecondaryPolicy)
	return c
}

// Channels lists the configured channel names in the order they are tried.
func (c *Client) Channels() []string {
	names := make([]string, 0, len(c.lanes))
	for _, l := range c.lanes {
		names = append(names, l.channel.Name())
	}
	return names
}

// Complete returns the first non-empty completion. When every channel fails
// the error is a *CompletionError describing the last one tried.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if len(c.lanes) == 0 {
		return "", &CompletionError{Kind: retry.KindFatal, Endpoint: "none", Err: ErrNoChannel}
	}

	var (
		lastErr  error
		endpoint string
		attempts int
	)
	for i, l := range c.lanes {
		endpoint = l.channel.Name()
		text, err := retry.Do(ctx, l.exec, func(ctx context.Context) (string, error) {
			attempts++
			start := time.Now()
			text, err := l.channel.Complete(ctx, req)
			if err == nil && strings.TrimSpace(text) == "" {
				err = retry.Newf(retry.KindMissingPayload, "%s returned an empty completion", endpoint)
			}
			c.metrics.ProviderCall("text."+endpoint, err, time.Since(start))
			return text, err
		})
		if err == nil {
			if i > 0 {
				c.logger.Info().Str("channel", endpoint).Msg("textgen: completed on fallback channel")
			}
			return text, nil
		}
		lastErr = err
		if retry.KindOf(err) == retry.KindCanceled {
			break
		}
		c.logger.Warn().
			Str("channel", endpoint).
			Str("kind", string(retry.KindOf(err))).
			Int("attempts", retry.AttemptsOf(err)).
			Err(err).
			Msg("textgen: channel exhausted")
	}

	return "", &CompletionError{
		Kind:     retry.KindOf(lastErr),
		Endpoint: endpoint,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func isNil(ch Channel) bool {
	if ch == nil {
		return true
	}
	switch v := ch.(type) {
	case *ProxyChannel:
		return v == nil
	case *DirectChannel:
		return v == nil
	}
	return false
}
