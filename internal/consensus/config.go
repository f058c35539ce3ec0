package consensus

import "time"

// Defaults applied when a RunConfiguration leaves a field unset.
const (
	DefaultMaxDebateRounds = 2
	DefaultTimeout         = 90 * time.Second
)

// DefaultAgents returns the agents consulted when none are configured.
func DefaultAgents() []string {
	return []string{"gemini", "codex"}
}

// RunConfiguration is supplied once per run and never mutated during it.
type RunConfiguration struct {
	// Agents is the ordered agent list. Nil means DefaultAgents; an empty
	// non-nil slice consults nobody and the run is skipped.
	Agents []string
	// MaxDebateRounds bounds the debate after round 0. Zero disables debate;
	// negative means DefaultMaxDebateRounds.
	MaxDebateRounds int
	// Timeout is the hard per-invocation deadline. Zero or negative means
	// DefaultTimeout.
	Timeout time.Duration
}

// DefaultRunConfiguration returns {["gemini","codex"], 2, 90s}.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		Agents:          DefaultAgents(),
		MaxDebateRounds: DefaultMaxDebateRounds,
		Timeout:         DefaultTimeout,
	}
}

// WithDefaults returns a copy with unset fields filled in. A nil receiver
// yields DefaultRunConfiguration.
func (c *RunConfiguration) WithDefaults() RunConfiguration {
	if c == nil {
		return DefaultRunConfiguration()
	}
	out := RunConfiguration{
		Agents:          append([]string(nil), c.Agents...),
		MaxDebateRounds: c.MaxDebateRounds,
		Timeout:         c.Timeout,
	}
	if c.Agents == nil {
		out.Agents = DefaultAgents()
	} else if out.Agents == nil {
		out.Agents = []string{}
	}
	if out.MaxDebateRounds < 0 {
		out.MaxDebateRounds = DefaultMaxDebateRounds
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}
