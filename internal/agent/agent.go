// Package agent runs external text-generation agents as child processes and
// normalizes every outcome into a uniform Result.
//
// An Agent is anything that can turn a prompt into text within a deadline.
// CLIAgent covers the common case of a command-line tool; the Registry maps
// agent names to implementations so adding an agent is a registration rather
// than a new branch in the orchestration code. The Dispatcher fans one round
// of prompts out to several agents concurrently and joins on all of them.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/consensus/internal/errors"
)

// PromptPlaceholder is replaced by the prompt text inside CLIAgent arguments.
const PromptPlaceholder = "{prompt}"

// Failure texts carried in Result.Error.
const (
	ErrorTimeout  = "Timeout"
	ErrorCanceled = "Canceled"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// was killed, in case a process outside its group still holds them open.
const waitDelay = time.Second

// Result is the normalized outcome of one agent invocation. Results are
// never mutated after Invoke returns.
type Result struct {
	Agent     string
	Output    string
	Succeeded bool
	// Error is the human-readable failure reason; empty on success.
	Error string
	// Cause is the typed failure for logging and classification; nil on success.
	Cause    error
	Duration time.Duration
}

// Agent produces text for a prompt. Implementations must never panic and
// must honour the timeout; every failure is reported through the Result.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, prompt string, timeout time.Duration) Result
}

// CLIAgent runs a command-line agent once per invocation.
type CLIAgent struct {
	name        string
	command     string
	args        []string
	parser      OutputParser
	promptStdin bool
	dir         string
}

// CLIOption configures a CLIAgent.
type CLIOption func(*CLIAgent)

// WithPromptOnStdin writes the prompt to the process's standard input
// instead of passing it as an argument.
func WithPromptOnStdin() CLIOption {
	return func(a *CLIAgent) { a.promptStdin = true }
}

// WithWorkDir sets the working directory of the process.
func WithWorkDir(dir string) CLIOption {
	return func(a *CLIAgent) { a.dir = dir }
}

// NewCLIAgent creates an agent that runs command with args. Any argument
// equal to PromptPlaceholder is replaced by the prompt; if no argument is a
// placeholder and the prompt is not sent on stdin, the prompt is appended as
// the last argument. A nil parser defaults to TextParser.
func NewCLIAgent(name, command string, args []string, parser OutputParser, opts ...CLIOption) *CLIAgent {
	if parser == nil {
		parser = TextParser{}
	}
	a := &CLIAgent{
		name:    name,
		command: command,
		args:    append([]string(nil), args...),
		parser:  parser,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewGemini creates the gemini agent: `gemini -p <prompt>`, plain text output.
func NewGemini(command string) *CLIAgent {
	if command == "" {
		command = "gemini"
	}
	return NewCLIAgent("gemini", command, []string{"-p", PromptPlaceholder}, TextParser{})
}

// NewCodex creates the codex agent: `codex exec --json <prompt>`, whose
// stdout is a JSONL event stream.
func NewCodex(command string) *CLIAgent {
	if command == "" {
		command = "codex"
	}
	return NewCLIAgent("codex", command, []string{"exec", "--json", PromptPlaceholder}, CodexJSONLParser{})
}

// Name returns the agent identity.
func (a *CLIAgent) Name() string { return a.name }

// Command returns the executable and the argument list used for prompt.
func (a *CLIAgent) Command(prompt string) (string, []string) {
	return a.command, a.buildArgs(prompt)
}

func (a *CLIAgent) buildArgs(prompt string) []string {
	args := make([]string, 0, len(a.args)+1)
	substituted := false
	for _, arg := range a.args {
		if arg == PromptPlaceholder {
			if a.promptStdin {
				continue
			}
			args = append(args, prompt)
			substituted = true
			continue
		}
		args = append(args, arg)
	}
	if !substituted && !a.promptStdin {
		args = append(args, prompt)
	}
	return args
}

// Invoke runs the process under its own deadline. On expiry the process is
// killed and no partial output is kept.
func (a *CLIAgent) Invoke(ctx context.Context, prompt string, timeout time.Duration) (res Result) {
	start := time.Now()
	res.Agent = a.name
	defer func() { res.Duration = time.Since(start) }()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.command, a.buildArgs(prompt)...)
	cmd.Dir = a.dir
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	if a.promptStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if r, ok := a.interrupted(ctx, runCtx, res, timeout); ok {
			return r
		}
		return a.fail(res, fmt.Sprintf("%s not found", a.name),
			errors.NewAgentError(err.Error(), errors.ErrAgentNotFound))
	}

	if waitErr := cmd.Wait(); waitErr != nil {
		if r, ok := a.interrupted(ctx, runCtx, res, timeout); ok {
			return r
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", code)
		}
		return a.fail(res, msg, errors.NewAgentError(msg, errors.ErrAgentFailed).WithExitCode(code))
	}

	res.Output = a.parser.Parse(stdout.Bytes())
	res.Succeeded = true
	return res
}

// interrupted reports a failed start or wait caused by the caller's
// cancellation or by the invocation deadline. Either takes precedence over
// the exit status the kill produced.
func (a *CLIAgent) interrupted(ctx, runCtx context.Context, res Result, timeout time.Duration) (Result, bool) {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return a.fail(res, ErrorCanceled,
			errors.NewAgentError("invocation canceled", errors.ErrCanceled).WithSeverity(errors.SeverityInfo)), true
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		te := errors.NewTimeoutError("invoking "+a.name, timeout).WithCause(runCtx.Err())
		return a.fail(res, ErrorTimeout, errors.NewAgentError(te.Error(), errors.ErrAgentTimeout)), true
	}
	return res, false
}

func (a *CLIAgent) fail(res Result, msg string, cause *errors.AgentError) Result {
	res.Succeeded = false
	res.Output = ""
	res.Error = msg
	res.Cause = cause.WithAgent(a.name)
	return res
}
