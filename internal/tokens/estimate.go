// Package tokens provides heuristic token estimation for LLM cost accounting.
// Estimates are deliberately cheap and slightly pessimistic; they drive
// compaction thresholds and budget reporting, not billing.
package tokens

import (
	"strings"
	"unicode"
)

// ContentType hints at the kind of text being estimated. Structured content
// tokenizes more densely than prose, so the divisor differs per type.
type ContentType string

const (
	// ContentProse is plain natural-language text.
	ContentProse ContentType = "prose"
	// ContentMarkdown is Markdown-ish mixed text, the common agent output.
	ContentMarkdown ContentType = "markdown"
	// ContentJSON is JSON or similarly punctuation-heavy structured text.
	ContentJSON ContentType = "json"
	// ContentCode is source code.
	ContentCode ContentType = "code"
)

// charsPerToken maps content types to an average characters-per-token ratio.
// Values derived from sampling typical GPT/Claude tokenizer output.
var charsPerToken = map[ContentType]float64{
	ContentProse:    4.0,
	ContentMarkdown: 3.8,
	ContentJSON:     3.0,
	ContentCode:     3.2,
}

// EstimateTokens estimates the token count for prose text.
func EstimateTokens(text string) int {
	return EstimateTokensWithLanguageHint(text, ContentProse)
}

// EstimateTokensWithLanguageHint estimates the token count for text of a
// known content type. Returns 0 for empty or whitespace-only input.
func EstimateTokensWithLanguageHint(text string, hint ContentType) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	ratio, ok := charsPerToken[hint]
	if !ok {
		ratio = charsPerToken[ContentProse]
	}

	// Non-ASCII text (CJK especially) tokenizes close to one token per rune.
	runes := 0
	wide := 0
	for _, r := range trimmed {
		runes++
		if r > unicode.MaxASCII {
			wide++
		}
	}
	if runes > 0 && float64(wide)/float64(runes) > 0.5 {
		return runes
	}

	estimate := int(float64(len(trimmed)) / ratio)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
