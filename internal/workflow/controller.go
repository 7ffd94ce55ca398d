// Package workflow runs the pattern pipeline: optimize the pattern text,
// format it as a printable document, then write the marketplace listing.
// Only the first step is fatal to a run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"listify/internal/domain"
	"listify/internal/domain/jsoncfg"
	"listify/internal/infra"
	"listify/internal/metrics"
	"listify/internal/retry"
	"listify/internal/textgen"
)

// Completer is satisfied by textgen.Client and mock.Completer.
type Completer interface {
	Complete(ctx context.Context, req textgen.Request) (string, error)
}

type Options struct {
	Completer Completer
	Model     string
	MaxTokens int
	Logger    *infra.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Controller models exactly one run. It is safe to read State while a run
// is in flight, but runs must not overlap.
type Controller struct {
	id        string
	completer Completer
	model     string
	maxTokens int
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu        sync.RWMutex
	startedAt time.Time
	results   map[Step]StepResult
}

func New(opts Options) (*Controller, error) {
	if opts.Completer == nil {
		return nil, errors.New("workflow: completer is required")
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	id := uuid.NewString()
	return &Controller{
		id:        id,
		completer: opts.Completer,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		logger:    logger.With().Str("workflow_id", id).Logger(),
		metrics:   opts.Metrics,
		now:       now,
		results:   make(map[Step]StepResult),
	}, nil
}

func (c *Controller) ID() string { return c.id }

// State returns the run id and the last result of every step.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	steps := make(map[Step]StepResult, len(Steps))
	for _, s := range Steps {
		if r, ok := c.results[s]; ok {
			steps[s] = r
			continue
		}
		steps[s] = StepResult{Step: s, Status: StatusPending}
	}
	return State{WorkflowID: c.id, StartedAt: c.startedAt, Steps: steps}
}

// Reset clears every step result. The run id is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[Step]StepResult)
	c.startedAt = time.Time{}
}

// RunStep validates input and runs one step. Invalid input yields a failed,
// non-recoverable result without calling the model.
func (c *Controller) RunStep(ctx context.Context, step Step, input map[string]any, opts StepOptions) StepResult {
	c.mu.Lock()
	if c.startedAt.IsZero() {
		c.startedAt = c.now()
	}
	c.mu.Unlock()

	res := StepResult{Step: step, StartedAt: c.now()}
	var payload map[string]any
	var err error
	switch step {
	case StepPatternOptimization:
		payload, err = c.optimize(ctx, input, &res)
	case StepPDFGeneration:
		payload, err = c.formatPDF(ctx, input, &res)
	case StepEtsyListing:
		payload, err = c.writeListing(ctx, input, opts, &res)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownStep, step)
	}
	res.CompletedAt = c.now()

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.Recoverable = res.Attempted && step != StepPatternOptimization
		if res.Attempted {
			res.ErrorKind = string(retry.KindOf(err))
		}
		c.logger.Warn().
			Str("step", string(step)).
			Bool("attempted", res.Attempted).
			Bool("recoverable", res.Recoverable).
			Err(err).
			Msg("workflow: step failed")
	} else {
		res.Status = StatusSuccess
		res.Success = true
		res.Payload = payload
		c.logger.Info().Str("step", string(step)).Dur("elapsed", res.CompletedAt.Sub(res.StartedAt)).Msg("workflow: step completed")
	}
	c.metrics.WorkflowStep(string(step), string(res.Status))

	c.mu.Lock()
	c.results[step] = res
	c.mu.Unlock()
	return res
}

// RunFullWorkflow runs every step in order. A failed optimization aborts the
// run. A failed PDF step hands the optimized pattern straight to the listing
// step. A failed listing step is reported as a warning.
func (c *Controller) RunFullWorkflow(ctx context.Context, req Request) *Result {
	c.Reset()
	c.mu.Lock()
	c.startedAt = c.now()
	started := c.startedAt
	c.mu.Unlock()

	out := &Result{
		WorkflowID: c.id,
		Results:    make(map[Step]StepResult, len(Steps)),
		Warnings:   []string{},
		StartedAt:  started,
	}
	finish := func(success bool) *Result {
		out.Success = success
		out.CompletedAt = c.now()
		return out
	}

	optimized := c.RunStep(ctx, StepPatternOptimization, map[string]any{KeyPattern: req.Pattern}, StepOptions{})
	out.Results[StepPatternOptimization] = optimized
	if !optimized.Success {
		out.Error = "pattern optimization failed: " + optimized.Error
		return finish(false)
	}
	pattern := optimized.Text(KeyOptimizedPattern)

	pdf := c.RunStep(ctx, StepPDFGeneration, map[string]any{KeyOptimizedPattern: pattern}, StepOptions{})
	out.Results[StepPDFGeneration] = pdf
	listingInput := map[string]any{KeyOptimizedPattern: pattern}
	if pdf.Success {
		listingInput[KeyPDFContent] = pdf.Text(KeyPDFContent)
	} else {
		out.Warnings = append(out.Warnings, "pdf generation failed, listing built from the optimized pattern: "+pdf.Error)
	}

	listing := c.RunStep(ctx, StepEtsyListing, listingInput, StepOptions{Title: req.Title, Tags: req.Tags})
	out.Results[StepEtsyListing] = listing
	if !listing.Success {
		out.Warnings = append(out.Warnings, "etsy listing failed: "+listing.Error)
	}
	return finish(true)
}

func (c *Controller) optimize(ctx context.Context, input map[string]any, res *StepResult) (map[string]any, error) {
	pattern, err := requireString(input, KeyPattern)
	if err != nil {
		return nil, err
	}
	res.Attempted = true
	text, err := c.complete(ctx, optimizeSystemPrompt, optimizeUserPrompt(pattern), false)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyOptimizedPattern: text}, nil
}

func (c *Controller) formatPDF(ctx context.Context, input map[string]any, res *StepResult) (map[string]any, error) {
	optimized, err := requireString(input, KeyOptimizedPattern)
	if err != nil {
		return nil, err
	}
	res.Attempted = true
	text, err := c.complete(ctx, pdfSystemPrompt, pdfUserPrompt(optimized), false)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		KeyPDFContent:       jsoncfg.TrimCodeFence(text),
		KeyOptimizedPattern: optimized,
	}, nil
}

func (c *Controller) writeListing(ctx context.Context, input map[string]any, opts StepOptions, res *StepResult) (map[string]any, error) {
	source := KeyPDFContent
	content, err := requireString(input, KeyPDFContent)
	if err != nil {
		source = KeyOptimizedPattern
		if content, err = requireString(input, KeyOptimizedPattern); err != nil {
			return nil, fmt.Errorf("%w: %s or %s", domain.ErrMissingField, KeyPDFContent, KeyOptimizedPattern)
		}
	}
	res.Attempted = true
	text, err := c.complete(ctx, listingPrompt(), listingUserPrompt(content, opts), true)
	if err != nil {
		return nil, err
	}
	listing, err := jsoncfg.Decode[jsoncfg.Listing](text)
	if err != nil {
		return nil, retry.Fatal(retry.KindQuality, fmt.Errorf("listing json: %w", err))
	}
	listing.Normalize(opts.Title, opts.Tags)
	if err := listing.Validate(); err != nil {
		return nil, retry.Fatal(retry.KindQuality, fmt.Errorf("listing: %w", err))
	}
	return map[string]any{
		KeyTitle:         listing.Title,
		KeyDescription:   listing.Description,
		KeyTags:          listing.Tags,
		KeyContentSource: source,
	}, nil
}

func (c *Controller) complete(ctx context.Context, system, user string, asJSON bool) (string, error) {
	return c.completer.Complete(ctx, textgen.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        c.model,
		MaxTokens:    c.maxTokens,
		JSON:         asJSON,
	})
}

func requireString(input map[string]any, key string) (string, error) {
	raw, ok := input[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingField, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrInvalidInput, key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingField, key)
	}
	return s, nil
}
