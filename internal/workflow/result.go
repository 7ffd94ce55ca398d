package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"listify/internal/domain"
)

// Step names a pipeline stage.
type Step string

const (
	StepPatternOptimization Step = "pattern_optimization"
	StepPDFGeneration       Step = "pdf_generation"
	StepEtsyListing         Step = "etsy_listing"
)

// Steps is the fixed run order.
var Steps = []Step{StepPatternOptimization, StepPDFGeneration, StepEtsyListing}

// ParseStep accepts a step name in any case, with '-' for '_'.
func ParseStep(name string) (Step, error) {
	normalized := Step(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	for _, s := range Steps {
		if s == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownStep, name)
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Payload keys chained between steps.
const (
	KeyPattern          = "pattern"
	KeyOptimizedPattern = "optimizedPattern"
	KeyPDFContent       = "pdfContent"
	KeyContentSource    = "contentSource"
	KeyTitle            = "title"
	KeyDescription      = "description"
	KeyTags             = "tags"
)

// StepResult is the outcome of one step. Payload keys are marshalled beside
// the fixed fields, so a listing result reads {"success":true,"title":...}.
type StepResult struct {
	Step        Step
	Status      Status
	Success     bool
	Payload     map[string]any
	Error       string
	ErrorKind   string
	Recoverable bool
	// Attempted is false when input validation rejected the step.
	Attempted   bool
	StartedAt   time.Time
	CompletedAt time.Time
}

func (r StepResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+8)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["step"] = r.Step
	out["status"] = r.Status
	out["success"] = r.Success
	if r.Status == StatusFailed {
		out["error"] = r.Error
		out["recoverable"] = r.Recoverable
		out["attempted"] = r.Attempted
		if r.ErrorKind != "" {
			out["errorKind"] = r.ErrorKind
		}
	}
	if !r.StartedAt.IsZero() {
		out["startedAt"] = r.StartedAt
	}
	if !r.CompletedAt.IsZero() {
		out["completedAt"] = r.CompletedAt
	}
	return json.Marshal(out)
}

// Text reads a payload field as a trimmed string.
func (r StepResult) Text(key string) string {
	s, _ := r.Payload[key].(string)
	return strings.TrimSpace(s)
}

// Request is the input of a full run. Title and Tags are hints for the
// listing step.
type Request struct {
	Pattern string   `json:"pattern"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// StepOptions carries the listing hints to RunStep.
type StepOptions struct {
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type Result struct {
	Success     bool                `json:"success"`
	WorkflowID  string              `json:"workflowId"`
	Results     map[Step]StepResult `json:"results"`
	Warnings    []string            `json:"warnings"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
}

// State is a snapshot of a run. Steps that have not run are pending.
type State struct {
	WorkflowID string              `json:"workflowId"`
	StartedAt  time.Time           `json:"startedAt,omitzero"`
	Steps      map[Step]StepResult `json:"steps"`
}
