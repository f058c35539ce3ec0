// Package gate decides whether a change is worth sending to the consensus
// engine at all. Callers apply it before a run; the engine never consults it.
package gate

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

type rule struct {
	pattern string
	g       glob.Glob
	nested  bool
}

// PathFilter matches file paths against skip patterns.
//
// A path is skipped when a pattern matches its base name, the whole path, or
// (for patterns containing "/") any trailing run of its path segments. Wildcards
// cross "/" so "node_modules/**" skips every file below any node_modules dir.
type PathFilter struct {
	rules []rule
}

// NewPathFilter compiles the given patterns. Blank patterns are ignored.
func NewPathFilter(patterns []string) (*PathFilter, error) {
	f := &PathFilter{rules: make([]rule, 0, len(patterns))}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", p, err)
		}
		f.rules = append(f.rules, rule{pattern: p, g: g, nested: strings.Contains(p, "/")})
	}
	return f, nil
}

// Patterns returns the compiled patterns in order.
func (f *PathFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.rules))
	for i, r := range f.rules {
		out[i] = r.pattern
	}
	return out
}

// ShouldSkip reports whether filePath matches any skip pattern.
func (f *PathFilter) ShouldSkip(filePath string) bool {
	if f == nil || filePath == "" {
		return false
	}
	normalized := strings.ReplaceAll(filePath, "\\", "/")
	base := path.Base(normalized)

	for _, r := range f.rules {
		if r.g.Match(base) || r.g.Match(filePath) || r.g.Match(normalized) {
			return true
		}
		if !r.nested {
			continue
		}
		parts := strings.Split(normalized, "/")
		for i := range parts {
			if r.g.Match(strings.Join(parts[i:], "/")) {
				return true
			}
		}
	}
	return false
}

// LineCount counts lines the way editors do: a trailing newline does not
// start a new line, and a final unterminated line still counts.
func LineCount(content string) int {
	n := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// ShouldSkipChange reports whether content is too small to review.
func ShouldSkipChange(content string, minLines int) bool {
	return LineCount(content) < minLines
}
