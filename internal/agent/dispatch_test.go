package agent

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/consensus/internal/errors"
	"github.com/Iron-Ham/consensus/internal/logging"
	"github.com/Iron-Ham/consensus/internal/metrics"
)

type stubAgent struct {
	name  string
	delay time.Duration
	fn    func(prompt string) Result
	calls atomic.Int32
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Invoke(ctx context.Context, prompt string, timeout time.Duration) Result {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{Agent: s.name, Error: ErrorCanceled}
		}
	}
	return s.fn(prompt)
}

func echo(name string, delay time.Duration) *stubAgent {
	return &stubAgent{name: name, delay: delay, fn: func(p string) Result {
		return Result{Agent: name, Output: name + ":" + p, Succeeded: true}
	}}
}

func TestDispatcher_Dispatch_PreservesOrder(t *testing.T) {
	d := NewDispatcher()
	tasks := []Task{
		{Agent: echo("slow", 50*time.Millisecond), Prompt: "a"},
		{Agent: echo("fast", 0), Prompt: "b"},
		{Agent: echo("mid", 20*time.Millisecond), Prompt: "c"},
	}

	results := d.Dispatch(context.Background(), tasks, time.Second)
	want := []string{"slow:a", "fast:b", "mid:c"}
	for i, res := range results {
		if res.Output != want[i] {
			t.Errorf("results[%d].Output = %q, want %q", i, res.Output, want[i])
		}
	}
}

func TestDispatcher_Dispatch_RunsConcurrently(t *testing.T) {
	d := NewDispatcher()
	var tasks []Task
	for _, n := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, Task{Agent: echo(n, 200*time.Millisecond), Prompt: "p"})
	}

	start := time.Now()
	d.Dispatch(context.Background(), tasks, time.Second)
	if elapsed := time.Since(start); elapsed > 700*time.Millisecond {
		t.Errorf("dispatch took %v, want roughly the slowest single invocation", elapsed)
	}
}

func TestDispatcher_Dispatch_IsolatesFailures(t *testing.T) {
	failing := &stubAgent{name: "bad", fn: func(string) Result {
		return Result{Agent: "bad", Error: "exit code 1", Cause: errors.NewAgentError("exit code 1", errors.ErrAgentFailed)}
	}}
	panicking := &stubAgent{name: "boom", fn: func(string) Result { panic("kaboom") }}

	results := NewDispatcher().Dispatch(context.Background(), []Task{
		{Agent: failing, Prompt: "p"},
		{Agent: panicking, Prompt: "p"},
		{Agent: echo("good", 0), Prompt: "p"},
	}, time.Second)

	if results[0].Succeeded || results[0].Error != "exit code 1" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Succeeded || !strings.Contains(results[1].Error, "kaboom") || results[1].Agent != "boom" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if !results[2].Succeeded || results[2].Output != "good:p" {
		t.Errorf("results[2] = %+v", results[2])
	}
}

func TestDispatcher_Dispatch_Empty(t *testing.T) {
	if got := NewDispatcher().Dispatch(context.Background(), nil, time.Second); len(got) != 0 {
		t.Errorf("Dispatch(nil) = %v, want empty", got)
	}
}

func TestDispatcher_Broadcast(t *testing.T) {
	a, b := echo("a", 0), echo("b", 0)
	results := NewDispatcher().Broadcast(context.Background(), "same", []Agent{a, b}, time.Second)

	if len(results) != 2 || results[0].Output != "a:same" || results[1].Output != "b:same" {
		t.Errorf("Broadcast results = %+v", results)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("calls = %d, %d, want 1 each", a.calls.Load(), b.calls.Load())
	}
}

func TestDispatcher_RecordsMetricsAndLogs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	var buf bytes.Buffer
	logger := logging.NewLoggerWriter(&buf, logging.LevelDebug)

	timedOut := &stubAgent{name: "slowpoke", fn: func(string) Result {
		return Result{Agent: "slowpoke", Error: ErrorTimeout, Cause: errors.NewAgentError("t", errors.ErrAgentTimeout)}
	}}
	d := NewDispatcher(WithDispatchLogger(logger), WithDispatchMetrics(m))
	d.Dispatch(context.Background(), []Task{
		{Agent: echo("gemini", 0), Prompt: "p"},
		{Agent: timedOut, Prompt: "p"},
	}, time.Second)

	expected := `
		# HELP consensus_agent_invocations_total Agent process invocations by outcome.
		# TYPE consensus_agent_invocations_total counter
		consensus_agent_invocations_total{agent="gemini",outcome="success"} 1
		consensus_agent_invocations_total{agent="slowpoke",outcome="timeout"} 1
	`
	if err := promtest.GatherAndCompare(reg, strings.NewReader(expected), "consensus_agent_invocations_total"); err != nil {
		t.Errorf("unexpected invocation metrics: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"agent responded"`) || !strings.Contains(out, `"msg":"agent invocation failed"`) {
		t.Errorf("missing log entries: %s", out)
	}
	if !strings.Contains(out, `"outcome":"timeout"`) {
		t.Errorf("failure log should carry outcome: %s", out)
	}
}

func TestDispatcher_FailureLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		cause     error
		wantLevel string
		wantRetry bool
	}{
		{"timeout warns and is retryable", errors.NewAgentError("t", errors.ErrAgentTimeout), logging.LevelWarn, true},
		{"exit failure warns", errors.NewAgentError("exit code 2", errors.ErrAgentFailed), logging.LevelWarn, false},
		{"cancellation is informational", errors.NewAgentError("c", errors.ErrCanceled).WithSeverity(errors.SeverityInfo), logging.LevelInfo, false},
		{"panic is an error", errors.NewAgentError("panic", errors.ErrAgentFailed).WithSeverity(errors.SeverityError), logging.LevelError, false},
		{"untyped failure warns", nil, logging.LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			d := NewDispatcher(WithDispatchLogger(logging.NewLoggerWriter(&buf, logging.LevelDebug)))
			failing := &stubAgent{name: "gemini", fn: func(string) Result {
				return Result{Agent: "gemini", Error: "failed", Cause: tt.cause}
			}}
			d.Dispatch(context.Background(), []Task{{Agent: failing, Prompt: "p"}}, time.Second)

			out := buf.String()
			if !strings.Contains(out, `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("log level: want %s in %s", tt.wantLevel, out)
			}
			retry := `"retryable":false`
			if tt.wantRetry {
				retry = `"retryable":true`
			}
			if !strings.Contains(out, retry) {
				t.Errorf("want %s in %s", retry, out)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Succeeded: true}, metrics.OutcomeSuccess},
		{Result{Cause: errors.NewAgentError("x", errors.ErrAgentTimeout)}, metrics.OutcomeTimeout},
		{Result{Cause: errors.NewAgentError("x", errors.ErrAgentNotFound)}, metrics.OutcomeNotFound},
		{Result{Cause: errors.NewAgentError("x", errors.ErrCanceled)}, metrics.OutcomeCanceled},
		{Result{Error: "exit code 2"}, metrics.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Outcome(tt.res); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}
