package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Def describes a command-line agent declared in configuration.
type Def struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	// Output selects the stdout parser: "text" or "codex-jsonl".
	Output string `mapstructure:"output" yaml:"output"`
	// Stdin sends the prompt on standard input instead of as an argument.
	Stdin bool `mapstructure:"stdin" yaml:"stdin"`
	// Dir is the working directory of the process; empty inherits the caller's.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Registry maps agent names to implementations. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates a registry holding the given agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in gemini and codex agents.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGemini(""), NewCodex(""))
}

// NewRegistryFromDefs returns DefaultRegistry extended with agents declared
// in configuration. A definition with a built-in name replaces the built-in.
func NewRegistryFromDefs(defs map[string]Def) (*Registry, error) {
	r := DefaultRegistry()
	for name, def := range defs {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("agent definition with empty name")
		}
		if strings.TrimSpace(def.Command) == "" {
			return nil, fmt.Errorf("agent %q: command is required", name)
		}
		var opts []CLIOption
		if def.Stdin {
			opts = append(opts, WithPromptOnStdin())
		}
		if def.Dir != "" {
			opts = append(opts, WithWorkDir(def.Dir))
		}
		r.Register(NewCLIAgent(name, def.Command, def.Args, ParserFor(def.Output), opts...))
	}
	return r, nil
}

// Register adds or replaces an agent under its Name.
func (r *Registry) Register(a Agent) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Lookup returns the agent registered under name.
func (r *Registry) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps names to agents, preserving order and dropping duplicates.
// Names with no registered agent are returned separately.
func (r *Registry) Resolve(names []string) (agents []Agent, unknown []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if a, ok := r.Lookup(name); ok {
			agents = append(agents, a)
		} else {
			unknown = append(unknown, name)
		}
	}
	return agents, unknown
}
