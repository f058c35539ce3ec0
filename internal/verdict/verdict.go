// Package verdict classifies an agent's free-form response as approving or
// raising concerns.
package verdict

import (
	"regexp"
	"strings"
)

// Verdict is the binary classification of one response.
type Verdict string

const (
	Approve  Verdict = "APPROVE"
	Concerns Verdict = "CONCERNS"
)

// Parse returns the Verdict named by s, case-insensitively.
func Parse(s string) (Verdict, bool) {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case Approve:
		return Approve, true
	case Concerns:
		return Concerns, true
	default:
		return "", false
	}
}

// Extractor classifies response text. Implementations are total: every
// input yields a Verdict.
type Extractor interface {
	Extract(text string) Verdict
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(text string) Verdict

// Extract calls f.
func (f ExtractorFunc) Extract(text string) Verdict { return f(text) }

var markerPattern = regexp.MustCompile(`(?i)VERDICT:\s*(APPROVE|CONCERNS)`)

// concernKeywords trigger CONCERNS when no explicit marker is present.
// Matching is by case-insensitive substring, so "errors" and "issues" count.
var concernKeywords = []string{"bug", "issue", "error", "concern", "problem"}

// KeywordExtractor honours the first "VERDICT: APPROVE|CONCERNS" marker and
// otherwise falls back to a keyword heuristic. Text with neither a marker
// nor a keyword approves.
type KeywordExtractor struct{}

// Extract implements Extractor.
func (KeywordExtractor) Extract(text string) Verdict {
	if m := markerPattern.FindStringSubmatch(text); m != nil {
		v, _ := Parse(m[1])
		return v
	}
	lower := strings.ToLower(text)
	for _, kw := range concernKeywords {
		if strings.Contains(lower, kw) {
			return Concerns
		}
	}
	return Approve
}

// Default is the extractor used when none is configured.
var Default Extractor = KeywordExtractor{}
