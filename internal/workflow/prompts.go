package workflow

import (
	"fmt"
	"strings"

	"listify/internal/domain/jsoncfg"
)

const optimizeSystemPrompt = "You are an expert knitting and crochet pattern editor. Rewrite the pattern the seller provides so it is " +
	"clear, consistent and easy to follow: use standard abbreviations, number every row or round, state stitch counts at " +
	"the end of each row and fix obvious arithmetic mistakes. Return only the rewritten pattern text."

const pdfSystemPrompt = "You format craft patterns for printable PDF downloads. Convert the pattern into well structured Markdown " +
	"with a title heading, a materials section, an abbreviations table and numbered instructions. Return only the Markdown document."

const listingSystemPrompt = "You are an Etsy SEO copywriter creating a product listing for a digital pattern. " +
	"Respond with a single JSON object with the keys \"title\" (at most 140 characters), \"description\" " +
	"(plain text, a few short paragraphs) and \"tags\" (an array of at most %d short search phrases). Do not add any other text."

func optimizeUserPrompt(pattern string) string {
	return "Pattern:\n" + strings.TrimSpace(pattern)
}

func pdfUserPrompt(optimized string) string {
	return "Optimized pattern:\n" + strings.TrimSpace(optimized)
}

func listingPrompt() string {
	return fmt.Sprintf(listingSystemPrompt, jsoncfg.MaxListingTags)
}

func listingUserPrompt(content string, opts StepOptions) string {
	var b strings.Builder
	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintf(&b, "Preferred title: %s\n", title)
	}
	if len(opts.Tags) > 0 {
		fmt.Fprintf(&b, "Tags that must be included: %s\n", strings.Join(opts.Tags, ", "))
	}
	b.WriteString("Pattern content:\n")
	b.WriteString(strings.TrimSpace(content))
	return b.String()
}
