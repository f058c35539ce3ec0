package consensus

import (
	"github.com/Iron-Ham/consensus/internal/prompt"
)

// PseudoAgent is the original author of the reviewed content. It is seeded
// into every response set without being invoked.
const PseudoAgent = "claude"

// Entry is one agent's latest state in a ResponseSet. An entry is errored
// when its invocation failed and no good text exists yet.
type Entry struct {
	Agent string
	Text  string
	Error string
}

// Errored reports whether the entry carries the error marker.
func (e Entry) Errored() bool { return e.Error != "" }

// Display returns the text shown to peers and callers: the response, or
// "[Error: <reason>]" for errored entries.
func (e Entry) Display() string {
	if e.Errored() {
		return "[Error: " + e.Error + "]"
	}
	return e.Text
}

// ResponseSet maps agent identity to its latest response, preserving the
// order in which agents were first added. It is owned by a single run and
// is not safe for concurrent use.
type ResponseSet struct {
	order   []string
	entries map[string]Entry
}

// NewResponseSet returns an empty set.
func NewResponseSet() *ResponseSet {
	return &ResponseSet{entries: make(map[string]Entry)}
}

// Set records a successful response for agent, clearing any error marker.
func (s *ResponseSet) Set(agent, text string) {
	s.put(Entry{Agent: agent, Text: text})
}

// SetError marks agent as failed.
func (s *ResponseSet) SetError(agent, reason string) {
	if reason == "" {
		reason = "unknown error"
	}
	s.put(Entry{Agent: agent, Error: reason})
}

func (s *ResponseSet) put(e Entry) {
	if _, ok := s.entries[e.Agent]; !ok {
		s.order = append(s.order, e.Agent)
	}
	s.entries[e.Agent] = e
}

// Get returns the entry for agent.
func (s *ResponseSet) Get(agent string) (Entry, bool) {
	e, ok := s.entries[agent]
	return e, ok
}

// Len returns the number of entries.
func (s *ResponseSet) Len() int { return len(s.order) }

// Entries returns every entry in insertion order.
func (s *ResponseSet) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// Active returns the non-errored entries in insertion order.
func (s *ResponseSet) Active() []Entry {
	return s.filter(func(e Entry) bool { return !e.Errored() })
}

// Failed returns the errored entries in insertion order.
func (s *ResponseSet) Failed() []Entry {
	return s.filter(Entry.Errored)
}

func (s *ResponseSet) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, name := range s.order {
		if e := s.entries[name]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Peers returns the set as debate prompt input, errored entries included
// with their marker text.
func (s *ResponseSet) Peers() []prompt.Response {
	out := make([]prompt.Response, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, prompt.Response{Agent: name, Text: s.entries[name].Display()})
	}
	return out
}

// Snapshot returns a copy of the entries, detached from the set.
func (s *ResponseSet) Snapshot() []Entry {
	return s.Entries()
}
