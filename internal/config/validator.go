package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/consensus/internal/gate"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "debate_rounds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Upper bounds that catch obvious typos.
const (
	maxDebateRounds   = 10
	maxTimeoutSeconds = 3600
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateModels()...)
	errors = append(errors, c.validateRounds()...)
	errors = append(errors, c.validateLimits()...)
	errors = append(errors, c.validateSkipPaths()...)
	errors = append(errors, c.validateAgents()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateModels() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool, len(c.Models))
	for i, name := range c.Models {
		field := fmt.Sprintf("models[%d]", i)
		if strings.TrimSpace(name) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "agent name must not be empty",
			})
			continue
		}
		if seen[name] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "duplicate agent",
			})
		}
		seen[name] = true
	}

	return errors
}

func (c *Config) validateRounds() []ValidationError {
	var errors []ValidationError

	for field, value := range map[string]int{
		"debate_rounds":      c.DebateRounds,
		"stop_debate_rounds": c.StopDebateRounds,
	} {
		if value < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   value,
				Message: "must be non-negative",
			})
		} else if value > maxDebateRounds {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("exceeds maximum of %d", maxDebateRounds),
			})
		}
	}
	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })

	return errors
}

func (c *Config) validateLimits() []ValidationError {
	var errors []ValidationError

	if c.CLITimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cli_timeout",
			Value:   c.CLITimeoutSeconds,
			Message: "must be positive",
		})
	} else if c.CLITimeoutSeconds > maxTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "cli_timeout",
			Value:   c.CLITimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeoutSeconds),
		})
	}

	if c.MinChangeLines < 0 {
		errors = append(errors, ValidationError{
			Field:   "min_change_lines",
			Value:   c.MinChangeLines,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateSkipPaths() []ValidationError {
	var errors []ValidationError

	for i, pattern := range c.SkipPaths {
		if _, err := gate.NewPathFilter([]string{pattern}); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("skip_paths[%d]", i),
				Value:   pattern,
				Message: "invalid glob pattern",
			})
		}
	}

	return errors
}

func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if strings.TrimSpace(c.Agents[name].Command) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("agents.%s.command", name),
				Value:   c.Agents[name].Command,
				Message: "command is required",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
