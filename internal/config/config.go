// Package config supplies consensus settings from defaults, the environment
// and a per-project markdown file with YAML frontmatter.
//
// The engine never reads configuration itself. Callers load a Config here
// and hand the engine an explicit RunConfiguration and options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/consensus/internal/agent"
	"github.com/Iron-Ham/consensus/internal/consensus"
	"github.com/Iron-Ham/consensus/internal/errors"
	"github.com/Iron-Ham/consensus/internal/gate"
	"github.com/Iron-Ham/consensus/internal/logging"
	"github.com/Iron-Ham/consensus/internal/prompt"
	"github.com/Iron-Ham/consensus/internal/verdict"
)

// EnvPrefix prefixes environment overrides, e.g. CONSENSUS_DEBATE_ROUNDS.
const EnvPrefix = "CONSENSUS"

// LocalFileName is the per-project settings file inside the config dir.
// legacyLocalFileName is the misspelled name older installs used.
const (
	LocalFileName       = "consensus.local.md"
	legacyLocalFileName = "concensus.local.md"
)

// DefaultDir is the project-relative directory holding LocalFileName.
const DefaultDir = ".claude"

const frontmatterSeparator = "---"

// Config represents the complete consensus configuration
type Config struct {
	// Enabled turns consensus checks on or off for callers (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Models is the ordered list of agents consulted each run
	Models []string `mapstructure:"models"`
	// DebateRounds bounds debate after a disagreement (default: 2, 0 disables debate)
	DebateRounds int `mapstructure:"debate_rounds"`
	// StopDebateRounds bounds debate for end-of-session checks (default: 1)
	StopDebateRounds int `mapstructure:"stop_debate_rounds"`
	// CLITimeoutSeconds is the hard per-invocation deadline (default: 90)
	CLITimeoutSeconds int `mapstructure:"cli_timeout"`
	// SkipPaths are glob patterns for files never worth a review
	SkipPaths []string `mapstructure:"skip_paths"`
	// MinChangeLines is the smallest change that gets reviewed (default: 5)
	MinChangeLines int `mapstructure:"min_change_lines"`
	// TemplatesDir overrides the built-in prompt templates by file name
	TemplatesDir string `mapstructure:"templates_dir"`
	// VerdictScript is a Lua file defining verdict(text); empty uses keywords
	VerdictScript string `mapstructure:"verdict_script"`
	// Agents declares extra command-line agents, or replaces built-ins, by name
	Agents map[string]agent.Def `mapstructure:"agents"`
	// Logging controls the run log
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls run logging
type LoggingConfig struct {
	// Enabled controls whether a log file is written (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where consensus.log is written; empty means stderr
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Enabled:           true,
		Models:            consensus.DefaultAgents(),
		DebateRounds:      consensus.DefaultMaxDebateRounds,
		StopDebateRounds:  1,
		CLITimeoutSeconds: int(consensus.DefaultTimeout / time.Second),
		SkipPaths: []string{
			"*.md", "*.json", "*.yaml", "*.yml", "*.lock", "*.txt",
			"node_modules/**", ".git/**", "__pycache__/**",
		},
		MinChangeLines: 5,
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// CLITimeout returns the per-invocation deadline as a duration
func (c *Config) CLITimeout() time.Duration {
	return time.Duration(c.CLITimeoutSeconds) * time.Second
}

// SetDefaults registers default values and environment binding on v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("enabled", defaults.Enabled)
	v.SetDefault("models", defaults.Models)
	v.SetDefault("debate_rounds", defaults.DebateRounds)
	v.SetDefault("stop_debate_rounds", defaults.StopDebateRounds)
	v.SetDefault("cli_timeout", defaults.CLITimeoutSeconds)
	v.SetDefault("skip_paths", defaults.SkipPaths)
	v.SetDefault("min_change_lines", defaults.MinChangeLines)
	v.SetDefault("templates_dir", defaults.TemplatesDir)
	v.SetDefault("verdict_script", defaults.VerdictScript)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v into a Config struct and validates it.
// Validation failures are reported as an *errors.ValidationError wrapping
// the ValidationErrors found.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.NewValidationError("invalid configuration").
			WithField(errs[0].Field).
			WithValue(errs[0].Value).
			WithCause(ValidationErrors(errs))
	}

	return &cfg, nil
}

// LoadDir builds a Config from defaults, the environment, and the local
// settings file in dir, if present.
func LoadDir(dir string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if err := LoadLocal(v, dir); err != nil {
		return nil, err
	}
	return Load(v)
}

// LoadLocal merges the YAML frontmatter of dir/consensus.local.md into v.
// A missing file is not an error; the legacy misspelled name is also tried.
func LoadLocal(v *viper.Viper, dir string) error {
	for _, name := range []string{LocalFileName, legacyLocalFileName} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "read %s", name)
		}

		overrides, err := ParseFrontmatter(data)
		if err != nil {
			return errors.Wrap(err, name)
		}
		if len(overrides) == 0 {
			return nil
		}
		return v.MergeConfigMap(overrides)
	}
	return nil
}

// ParseFrontmatter returns the YAML mapping between the leading "---" lines
// of a markdown document. Documents without frontmatter yield an empty map.
func ParseFrontmatter(data []byte) (map[string]any, error) {
	content := strings.TrimPrefix(string(data), "\ufeff")
	if !strings.HasPrefix(content, frontmatterSeparator) {
		return map[string]any{}, nil
	}

	rest := content[len(frontmatterSeparator):]
	idx := strings.Index(rest, "\n"+frontmatterSeparator)
	if idx < 0 {
		return map[string]any{}, nil
	}

	out := map[string]any{}
	if err := yaml.Unmarshal([]byte(rest[:idx]), &out); err != nil {
		return nil, fmt.Errorf("parse YAML frontmatter: %w", err)
	}
	return out, nil
}

// RunConfig returns the run configuration for an ordinary review.
func (c *Config) RunConfig() consensus.RunConfiguration {
	return c.runConfig(c.DebateRounds)
}

// StopRunConfig returns the run configuration for an end-of-session check,
// which debates for StopDebateRounds instead.
func (c *Config) StopRunConfig() consensus.RunConfiguration {
	return c.runConfig(c.StopDebateRounds)
}

func (c *Config) runConfig(rounds int) consensus.RunConfiguration {
	rc := consensus.RunConfiguration{
		Agents:          append([]string(nil), c.Models...),
		MaxDebateRounds: rounds,
		Timeout:         c.CLITimeout(),
	}
	return rc.WithDefaults()
}

// PathFilter compiles SkipPaths.
func (c *Config) PathFilter() (*gate.PathFilter, error) {
	return gate.NewPathFilter(c.SkipPaths)
}

// ShouldReview reports whether a change to filePath is worth a consensus run.
// It is always false when checks are disabled.
func (c *Config) ShouldReview(filePath, content string) (bool, error) {
	if !c.Enabled {
		return false, nil
	}
	f, err := c.PathFilter()
	if err != nil {
		return false, err
	}
	if f.ShouldSkip(filePath) {
		return false, nil
	}
	return !gate.ShouldSkipChange(content, c.MinChangeLines), nil
}

// OpenLogger returns the logger described by the logging section. When
// logging is disabled the logger discards everything.
func (c *Config) OpenLogger() (*logging.Logger, error) {
	if !c.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(c.Logging.Dir, logging.ParseLevel(c.Logging.Level))
}

// EngineOptions builds the engine options implied by the configuration:
// the agent registry, template overrides, and the verdict script.
func (c *Config) EngineOptions(logger *logging.Logger) ([]consensus.Option, error) {
	registry, err := agent.NewRegistryFromDefs(c.Agents)
	if err != nil {
		return nil, err
	}

	opts := []consensus.Option{
		consensus.WithRegistry(registry),
		consensus.WithLogger(logger),
	}
	if c.TemplatesDir != "" {
		opts = append(opts, consensus.WithTemplates(prompt.NewDirSource(c.TemplatesDir, prompt.EmbeddedSource{})))
	}
	if c.VerdictScript != "" {
		x, err := verdict.LoadLuaExtractor(c.VerdictScript, verdict.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, consensus.WithExtractor(x))
	}
	return opts, nil
}
