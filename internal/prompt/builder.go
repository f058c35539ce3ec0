// Package prompt renders verification and debate prompts from templates.
//
// Rendering is plain placeholder substitution. Verification prompts use
// {{context}} and {{file_path}}; debate prompts use {{original_context}},
// {{own_response}} and {{other_responses}}. Substitution happens in a single
// pass, so placeholder-like text inside substituted values is left alone.
package prompt

import (
	"strings"
)

// ModeCode selects the code-review template; every other mode uses the
// design-review template.
const ModeCode = "code"

// Response is one agent's latest text, as exposed to peers in a debate round.
type Response struct {
	Agent string
	Text  string
}

// Builder renders prompts from a TemplateSource.
type Builder struct {
	source TemplateSource
}

// NewBuilder creates a Builder. A nil source uses the embedded templates.
func NewBuilder(source TemplateSource) *Builder {
	if source == nil {
		source = EmbeddedSource{}
	}
	return &Builder{source: source}
}

// TemplateFor returns the verification template name for mode.
func TemplateFor(mode string) string {
	if mode == ModeCode {
		return TemplateVerifyCode
	}
	return TemplateVerifyDesign
}

// Verification renders the first-round prompt for mode.
func (b *Builder) Verification(mode, content, filePath string) (string, error) {
	tmpl, err := b.source.Load(TemplateFor(mode))
	if err != nil {
		return "", err
	}
	return strings.NewReplacer(
		"{{context}}", content,
		"{{file_path}}", filePath,
	).Replace(tmpl), nil
}

// Debate renders the debate prompt addressed to agent. responses is the
// ordered response set; every entry other than agent's own is listed as
// "[name]: text", separated by blank lines, in the given order.
func (b *Builder) Debate(originalContent string, responses []Response, agent string) (string, error) {
	tmpl, err := b.source.Load(TemplateDebateRound)
	if err != nil {
		return "", err
	}

	var own string
	others := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.Agent == agent {
			own = r.Text
			continue
		}
		others = append(others, "["+r.Agent+"]: "+r.Text)
	}

	return strings.NewReplacer(
		"{{original_context}}", originalContent,
		"{{own_response}}", own,
		"{{other_responses}}", strings.Join(others, "\n\n"),
	).Replace(tmpl), nil
}
