package mock

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"listify/internal/retry"
	"listify/internal/textgen"
)

// Completer answers workflow prompts with fixed text. The reply is chosen by
// markers in the system prompt so every pipeline step gets a usable shape.
type Completer struct {
	calls atomic.Int64
}

func NewCompleter() *Completer { return &Completer{} }

func (c *Completer) Name() string { return "mock" }

// Calls reports how many completions were served.
func (c *Completer) Calls() int64 { return c.calls.Load() }

func (c *Completer) Complete(ctx context.Context, req textgen.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", retry.Classify(err)
	}
	c.calls.Add(1)
	system := strings.ToLower(req.SystemPrompt)
	user := strings.TrimSpace(req.UserPrompt)
	switch {
	case strings.Contains(system, "listing"):
		return `{"title":"Handmade Knitting Pattern | Beginner Friendly PDF","description":"A clear, tested pattern with step by step rows.","tags":["knitting pattern","beginner knit","pdf pattern","handmade"]}`, nil
	case strings.Contains(system, "markdown"):
		return fmt.Sprintf("# Pattern\n\n## Instructions\n\n%s\n", user), nil
	default:
		return fmt.Sprintf("Optimized pattern:\n%s", user), nil
	}
}
