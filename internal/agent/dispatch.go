package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/consensus/internal/errors"
	"github.com/Iron-Ham/consensus/internal/logging"
	"github.com/Iron-Ham/consensus/internal/metrics"
	"github.com/Iron-Ham/consensus/internal/util"
)

// logPreviewLength caps the response preview in debug logs.
const logPreviewLength = 120

// Task pairs an agent with the prompt it should receive.
type Task struct {
	Agent  Agent
	Prompt string
}

// Dispatcher runs a batch of invocations concurrently and waits for all of them.
type Dispatcher struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger used for per-invocation records.
func WithDispatchLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatchMetrics sets the metrics sink.
func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes every task concurrently, each with its own timeout, and
// returns one Result per task in task order. Wall-clock time is bounded by
// the slowest invocation, not the sum. One agent's failure never affects
// another's; a panicking Agent is reported as a failed Result.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []Task, timeout time.Duration) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = d.invoke(ctx, task, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Broadcast sends the same prompt to every agent.
func (d *Dispatcher) Broadcast(ctx context.Context, prompt string, agents []Agent, timeout time.Duration) []Result {
	tasks := make([]Task, len(agents))
	for i, a := range agents {
		tasks[i] = Task{Agent: a, Prompt: prompt}
	}
	return d.Dispatch(ctx, tasks, timeout)
}

func (d *Dispatcher) invoke(ctx context.Context, task Task, timeout time.Duration) (res Result) {
	name := task.Agent.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			res = Result{
				Agent:    name,
				Error:    msg,
				Cause:    errors.NewAgentError(msg, errors.ErrAgentFailed).WithAgent(name).WithSeverity(errors.SeverityError),
				Duration: time.Since(start),
			}
		}
		d.record(res)
	}()

	res = task.Agent.Invoke(ctx, task.Prompt, timeout)
	res.Agent = name
	return res
}

func (d *Dispatcher) record(res Result) {
	outcome := Outcome(res)
	d.metrics.ObserveInvocation(res.Agent, outcome, res.Duration)

	log := d.logger.WithAgent(res.Agent)
	if res.Succeeded {
		log.Debug("agent responded",
			"duration_ms", res.Duration.Milliseconds(),
			"output_len", len(res.Output),
			"preview", util.TruncateString(res.Output, logPreviewLength))
		return
	}
	severity := errors.SeverityWarning
	if res.Cause != nil {
		severity = errors.GetSeverity(res.Cause)
	}
	args := []any{
		"outcome", outcome,
		"error", res.Error,
		"severity", severity.String(),
		"retryable", errors.IsRetryable(res.Cause),
		"duration_ms", res.Duration.Milliseconds(),
	}
	switch {
	case severity <= errors.SeverityInfo:
		log.Info("agent invocation failed", args...)
	case severity == errors.SeverityWarning:
		log.Warn("agent invocation failed", args...)
	default:
		log.Error("agent invocation failed", args...)
	}
}

// Outcome classifies a Result into one of the metrics outcome labels.
func Outcome(res Result) string {
	switch {
	case res.Succeeded:
		return metrics.OutcomeSuccess
	case errors.Is(res.Cause, errors.ErrAgentTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(res.Cause, errors.ErrAgentNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(res.Cause, errors.ErrCanceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeFailure
	}
}
