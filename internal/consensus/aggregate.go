package consensus

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/consensus/internal/util"
	"github.com/Iron-Ham/consensus/internal/verdict"
)

// Status is the aggregate classification of a run.
type Status string

const (
	FullConsensus Status = "FULL_CONSENSUS"
	MajorityAgree Status = "MAJORITY_AGREE"
	// NoConsensus is part of the status vocabulary but Aggregate never
	// returns it; callers must not depend on it appearing.
	NoConsensus Status = "NO_CONSENSUS"
	Skipped     Status = "SKIPPED"
)

// ExcerptLength caps each concerned agent's text in the summary.
const ExcerptLength = 300

// Fixed summary and recommendation texts.
const (
	RecommendProceed  = "All models agree. Proceed as-is."
	RecommendSkipped  = "Consensus unavailable. Proceed with caution."
	SummarySkipped    = "No models responded successfully. Skipping consensus."
	recommendReviewFn = "Review concerns raised by %s before proceeding."
)

// Tally is the per-agent verdict breakdown of a set of entries.
type Tally struct {
	Approve  []string
	Concerns []string
	texts    map[string]string
}

// Count classifies every entry. Order follows the input.
func Count(entries []Entry, x verdict.Extractor) Tally {
	t := Tally{texts: make(map[string]string, len(entries))}
	for _, e := range entries {
		t.texts[e.Agent] = e.Text
		if x.Extract(e.Text) == verdict.Approve {
			t.Approve = append(t.Approve, e.Agent)
		} else {
			t.Concerns = append(t.Concerns, e.Agent)
		}
	}
	return t
}

// Status reduces the tally. Unanimity in either direction is full
// consensus; any mix is MAJORITY_AGREE regardless of the split.
func (t Tally) Status() Status {
	if len(t.Approve) == 0 || len(t.Concerns) == 0 {
		return FullConsensus
	}
	return MajorityAgree
}

// Classify counts the non-errored entries. A terminated run classifies
// once and hands the tally to Format.
func Classify(entries []Entry, x verdict.Extractor) Tally {
	return Count(activeOnly(entries), x)
}

// Aggregate returns the status of the non-errored entries.
func Aggregate(entries []Entry, x verdict.Extractor) Status {
	return Classify(entries, x).Status()
}

func activeOnly(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Errored() {
			out = append(out, e)
		}
	}
	return out
}

// Format renders the summary and recommendation for a terminated run from
// the tally of its non-errored entries. Errored agents are listed by name
// with their failure reason.
func Format(status Status, round int, entries []Entry, t Tally) (summary, recommendation string) {
	var failed []Entry
	for _, e := range entries {
		if e.Errored() {
			failed = append(failed, e)
		}
	}

	if status == Skipped {
		lines := []string{SummarySkipped}
		if line := erroredLine(failed); line != "" {
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), RecommendSkipped
	}

	lines := []string{fmt.Sprintf("Status: %s (round %d)", status, round)}
	if len(t.Approve) > 0 {
		lines = append(lines, "Approve: "+strings.Join(t.Approve, ", "))
	}
	if len(t.Concerns) > 0 {
		lines = append(lines, "Concerns raised by: "+strings.Join(t.Concerns, ", "))
		for _, name := range t.Concerns {
			lines = append(lines, fmt.Sprintf("  [%s]: %s", name, util.Excerpt(t.texts[name], ExcerptLength)))
		}
	}
	if line := erroredLine(failed); line != "" {
		lines = append(lines, line)
	}

	switch {
	case len(t.Concerns) > 0:
		recommendation = fmt.Sprintf(recommendReviewFn, strings.Join(t.Concerns, ", "))
	case status == FullConsensus:
		recommendation = RecommendProceed
	}
	return strings.Join(lines, "\n"), recommendation
}

func erroredLine(failed []Entry) string {
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, len(failed))
	for i, e := range failed {
		parts[i] = fmt.Sprintf("%s (%s)", e.Agent, e.Error)
	}
	return "Errored: " + strings.Join(parts, ", ")
}
