package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listify/internal/domain"
	"listify/internal/providers/mock"
	"listify/internal/retry"
	"listify/internal/textgen"
)

const samplePattern = "Cast on 20 stitches. Row 1: knit across. Row 2: purl across. Repeat rows 1-2 ten times. Bind off."

// stubCompleter answers by the step its system prompt belongs to.
type stubCompleter struct {
	mu       sync.Mutex
	requests []textgen.Request
	optimize func(textgen.Request) (string, error)
	pdf      func(textgen.Request) (string, error)
	listing  func(textgen.Request) (string, error)
}

func (s *stubCompleter) Complete(_ context.Context, req textgen.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	switch req.SystemPrompt {
	case optimizeSystemPrompt:
		return s.optimize(req)
	case pdfSystemPrompt:
		return s.pdf(req)
	default:
		return s.listing(req)
	}
}

func (s *stubCompleter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func fixed(text string) func(textgen.Request) (string, error) {
	return func(textgen.Request) (string, error) { return text, nil }
}

func failing(kind retry.Kind) func(textgen.Request) (string, error) {
	return func(textgen.Request) (string, error) {
		return "", &textgen.CompletionError{Kind: kind, Endpoint: "direct", Attempts: 4, Err: retry.Newf(kind, "provider down")}
	}
}

func newStub() *stubCompleter {
	return &stubCompleter{
		optimize: fixed("Optimized: CO 20 sts. R1: k20. R2: p20. Rep R1-2 x10. BO."),
		pdf:      fixed("```markdown\n# Garter Scarf\n\n## Instructions\n1. CO 20 sts\n```"),
		listing:  fixed(`Here you go: {"title":"Easy Beginner Knit Scarf Pattern","description":"A quick knit.","tags":["knit scarf","beginner pattern","Knit Scarf"]}`),
	}
}

func newController(t *testing.T, c Completer) *Controller {
	t.Helper()
	ctrl, err := New(Options{Completer: c})
	require.NoError(t, err)
	return ctrl
}

func TestRunFullWorkflowEndToEnd(t *testing.T) {
	stub := newStub()
	ctrl := newController(t, stub)

	res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern})
	require.True(t, res.Success)
	assert.Equal(t, ctrl.ID(), res.WorkflowID)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))

	opt := res.Results[StepPatternOptimization]
	assert.True(t, opt.Success)
	assert.Equal(t, "Optimized: CO 20 sts. R1: k20. R2: p20. Rep R1-2 x10. BO.", opt.Text(KeyOptimizedPattern))

	pdf := res.Results[StepPDFGeneration]
	assert.True(t, pdf.Success)
	assert.Equal(t, "# Garter Scarf\n\n## Instructions\n1. CO 20 sts", pdf.Text(KeyPDFContent))

	listing := res.Results[StepEtsyListing]
	require.True(t, listing.Success)
	assert.Equal(t, "Easy Beginner Knit Scarf Pattern", listing.Text(KeyTitle))
	assert.Equal(t, []string{"knit scarf", "beginner pattern"}, listing.Payload[KeyTags])
	assert.Equal(t, KeyPDFContent, listing.Text(KeyContentSource))

	require.Equal(t, 3, stub.count())
	assert.Contains(t, stub.requests[0].UserPrompt, samplePattern)
	assert.Contains(t, stub.requests[1].UserPrompt, "CO 20 sts")
	assert.Contains(t, stub.requests[2].UserPrompt, "# Garter Scarf")
	assert.True(t, stub.requests[2].JSON)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded struct {
		Success bool `json:"success"`
		Results map[string]struct {
			Success bool     `json:"success"`
			Title   string   `json:"title"`
			Tags    []string `json:"tags"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Success)
	assert.True(t, decoded.Results["etsy_listing"].Success)
	assert.Equal(t, "Easy Beginner Knit Scarf Pattern", decoded.Results["etsy_listing"].Title)
	assert.Len(t, decoded.Results["etsy_listing"].Tags, 2)
}

func TestRunFullWorkflowWithMockCompleter(t *testing.T) {
	completer := mock.NewCompleter()
	ctrl := newController(t, completer)

	res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern, Title: "Garter Scarf", Tags: []string{"scarf"}})
	require.True(t, res.Success)
	for _, step := range Steps {
		assert.True(t, res.Results[step].Success, "step %s", step)
	}
	listing := res.Results[StepEtsyListing]
	assert.Equal(t, "scarf", listing.Payload[KeyTags].([]string)[0])
	assert.EqualValues(t, 3, completer.Calls())
}

func TestRunFullWorkflowEmptyPatternIsFatal(t *testing.T) {
	stub := newStub()
	ctrl := newController(t, stub)

	res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: "   "})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, res.Results, 1)
	_, ranPDF := res.Results[StepPDFGeneration]
	_, ranListing := res.Results[StepEtsyListing]
	assert.False(t, ranPDF)
	assert.False(t, ranListing)

	opt := res.Results[StepPatternOptimization]
	assert.False(t, opt.Success)
	assert.False(t, opt.Attempted)
	assert.False(t, opt.Recoverable)
	assert.Equal(t, 0, stub.count())

	state := ctrl.State()
	assert.Equal(t, StatusPending, state.Steps[StepPDFGeneration].Status)
	assert.Equal(t, StatusPending, state.Steps[StepEtsyListing].Status)
}

func TestRunFullWorkflowOptimizationProviderFailureAborts(t *testing.T) {
	stub := newStub()
	stub.optimize = failing(retry.KindServer)
	ctrl := newController(t, stub)

	res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern})
	assert.False(t, res.Success)
	opt := res.Results[StepPatternOptimization]
	assert.True(t, opt.Attempted)
	assert.False(t, opt.Recoverable)
	assert.Equal(t, string(retry.KindServer), opt.ErrorKind)
	assert.Equal(t, 1, stub.count())
}

func TestRunFullWorkflowPDFFailureContinuesWithOptimizedPattern(t *testing.T) {
	stub := newStub()
	stub.pdf = failing(retry.KindTimeout)
	ctrl := newController(t, stub)

	res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern})
	require.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "pdf generation failed")

	pdf := res.Results[StepPDFGeneration]
	assert.False(t, pdf.Success)
	assert.True(t, pdf.Recoverable)

	listing := res.Results[StepEtsyListing]
	assert.True(t, listing.Success)
	assert.Equal(t, KeyOptimizedPattern, listing.Text(KeyContentSource))
	assert.Contains(t, stub.requests[2].UserPrompt, "Optimized: CO 20 sts")
}

func TestRunFullWorkflowListingFailureIsWarning(t *testing.T) {
	tests := []struct {
		name    string
		listing func(textgen.Request) (string, error)
	}{
		{"provider exhausted", failing(retry.KindRateLimited)},
		{"not json", fixed("I cannot help with that.")},
		{"missing tags", fixed(`{"title":"A","description":"B","tags":[]}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := newStub()
			stub.listing = tc.listing
			ctrl := newController(t, stub)

			res := ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern})
			assert.True(t, res.Success)
			require.Len(t, res.Warnings, 1)
			assert.True(t, strings.HasPrefix(res.Warnings[0], "etsy listing failed"))
			assert.True(t, res.Results[StepEtsyListing].Recoverable)
		})
	}
}

func TestRunStepValidatesInput(t *testing.T) {
	stub := newStub()
	ctrl := newController(t, stub)
	ctx := context.Background()

	tests := []struct {
		name  string
		step  Step
		input map[string]any
		want  error
	}{
		{"missing pattern", StepPatternOptimization, map[string]any{}, domain.ErrMissingField},
		{"pattern wrong type", StepPatternOptimization, map[string]any{KeyPattern: 42}, domain.ErrInvalidInput},
		{"pdf without optimized pattern", StepPDFGeneration, map[string]any{KeyPattern: "x"}, domain.ErrMissingField},
		{"listing without content", StepEtsyListing, map[string]any{KeyOptimizedPattern: ""}, domain.ErrMissingField},
		{"unknown step", Step("shipping"), map[string]any{}, domain.ErrUnknownStep},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := ctrl.RunStep(ctx, tc.step, tc.input, StepOptions{})
			assert.False(t, res.Success)
			assert.False(t, res.Attempted)
			assert.False(t, res.Recoverable)
			assert.Equal(t, StatusFailed, res.Status)
			assert.Contains(t, res.Error, tc.want.Error())
		})
	}
	assert.Equal(t, 0, stub.count())
}

func TestRunStepListingFromOptimizedPattern(t *testing.T) {
	stub := newStub()
	ctrl := newController(t, stub)

	res := ctrl.RunStep(context.Background(), StepEtsyListing,
		map[string]any{KeyOptimizedPattern: "CO 20"},
		StepOptions{Title: "", Tags: []string{"gift idea"}})
	require.True(t, res.Success)
	assert.Equal(t, []string{"gift idea", "knit scarf", "beginner pattern"}, res.Payload[KeyTags])
	assert.Contains(t, stub.requests[0].UserPrompt, "Tags that must be included: gift idea")
}

func TestStateAndReset(t *testing.T) {
	ctrl := newController(t, newStub())
	id := ctrl.ID()

	initial := ctrl.State()
	assert.Equal(t, id, initial.WorkflowID)
	for _, step := range Steps {
		assert.Equal(t, StatusPending, initial.Steps[step].Status)
	}

	ctrl.RunFullWorkflow(context.Background(), Request{Pattern: samplePattern})
	state := ctrl.State()
	for _, step := range Steps {
		assert.Equal(t, StatusSuccess, state.Steps[step].Status)
	}

	ctrl.Reset()
	after := ctrl.State()
	assert.Equal(t, id, after.WorkflowID)
	assert.True(t, after.StartedAt.IsZero())
	for _, step := range Steps {
		assert.Equal(t, StatusPending, after.Steps[step].Status)
	}
}

func TestControllersHaveDistinctIDs(t *testing.T) {
	a := newController(t, newStub())
	b := newController(t, newStub())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestParseStep(t *testing.T) {
	for in, want := range map[string]Step{
		"pattern_optimization": StepPatternOptimization,
		"PDF-Generation":       StepPDFGeneration,
		" etsy_listing ":       StepEtsyListing,
	} {
		got, err := ParseStep(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStep("translate")
	assert.True(t, errors.Is(err, domain.ErrUnknownStep))
}

func TestStepResultMarshalInlinesPayload(t *testing.T) {
	raw, err := json.Marshal(StepResult{
		Step:    StepEtsyListing,
		Status:  StatusSuccess,
		Success: true,
		Payload: map[string]any{KeyTitle: "T", KeyTags: []string{"a"}},
	})
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "T", got["title"])
	assert.Equal(t, true, got["success"])
	assert.NotContains(t, got, "error")
}
