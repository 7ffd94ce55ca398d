package jsoncfg

import (
	"fmt"
	"strings"
)

const (
	// MaxListingTags bounds the tag list kept from model output.
	MaxListingTags = 13
)

// Listing is the marketplace listing a model is asked to produce.
type Listing struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// EnhancedPrompt is the enhancer contract.
type EnhancedPrompt struct {
	Prompt string `json:"enhanced_prompt"`
}

// Normalize trims fields, merges hint tags, and drops duplicate tags case-insensitively.
func (l *Listing) Normalize(hintTitle string, hintTags []string) {
	if l == nil {
		return
	}
	l.Title = strings.TrimSpace(l.Title)
	if l.Title == "" {
		l.Title = strings.TrimSpace(hintTitle)
	}
	l.Description = strings.TrimSpace(l.Description)

	seen := make(map[string]struct{})
	tags := make([]string, 0, len(l.Tags)+len(hintTags))
	for _, tag := range append(append([]string(nil), hintTags...), l.Tags...) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == MaxListingTags {
			break
		}
	}
	l.Tags = tags
}

// Validate reports the first missing field.
func (l Listing) Validate() error {
	if l.Title == "" {
		return fmt.Errorf("title is required")
	}
	if l.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(l.Tags) == 0 {
		return fmt.Errorf("at least one tag is required")
	}
	return nil
}
