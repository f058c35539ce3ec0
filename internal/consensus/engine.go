// Package consensus runs a judgment prompt past several independent agents
// and, when they disagree, lets them debate for a bounded number of rounds.
//
// A run moves through round 0, where every configured agent answers the
// verification prompt independently, then debate rounds 1..N, where each
// agent that has a usable answer sees its peers' latest answers and may
// revise. The run terminates early on full consensus. Individual agent
// failures never abort a run; they are recorded in the response set and
// named in the summary. Only a template that cannot be loaded, or a
// canceled context, surfaces as an error.
package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/consensus/internal/agent"
	"github.com/Iron-Ham/consensus/internal/errors"
	"github.com/Iron-Ham/consensus/internal/event"
	"github.com/Iron-Ham/consensus/internal/logging"
	"github.com/Iron-Ham/consensus/internal/metrics"
	"github.com/Iron-Ham/consensus/internal/prompt"
	"github.com/Iron-Ham/consensus/internal/verdict"
)

// Review modes. "code" selects the code-review prompt; every other mode is
// reviewed as a decision.
const (
	ModeCode      = prompt.ModeCode
	ModeDesign    = "design"
	ModePlan      = "plan"
	ModeResearch  = "research"
	ModeDirection = "direction"
)

// Result is the immutable outcome of a run.
type Result struct {
	RunID          string
	Status         Status
	Round          int
	Summary        string
	Recommendation string
	// Responses is the final response set, pseudo-agent first, then agents
	// in configured order.
	Responses []Entry
}

// Response returns the final entry for agent.
func (r *Result) Response(agent string) (Entry, bool) {
	for _, e := range r.Responses {
		if e.Agent == agent {
			return e, true
		}
	}
	return Entry{}, false
}

// Engine orchestrates consensus runs. An Engine holds no per-run state and
// may serve concurrent runs.
type Engine struct {
	registry   *agent.Registry
	builder    *prompt.Builder
	extractor  verdict.Extractor
	logger     *logging.Logger
	metrics    *metrics.Metrics
	bus        *event.Bus
	tracer     trace.Tracer
	dispatcher *agent.Dispatcher
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the agent registry. Defaults to agent.DefaultRegistry.
func WithRegistry(r *agent.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithTemplates sets the template source. Defaults to the embedded templates.
func WithTemplates(src prompt.TemplateSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.builder = prompt.NewBuilder(src)
		}
	}
}

// WithExtractor sets the verdict extractor. Defaults to verdict.Default.
func WithExtractor(x verdict.Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithBus sets the bus that receives run lifecycle events.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(traceScope)
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry:  agent.DefaultRegistry(),
		builder:   prompt.NewBuilder(nil),
		extractor: verdict.Default,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.GetTracerProvider().Tracer(traceScope)
	}
	e.dispatcher = agent.NewDispatcher(
		agent.WithDispatchLogger(e.logger),
		agent.WithDispatchMetrics(e.metrics),
	)
	return e
}

// RunConsensus runs with a default Engine. A nil cfg uses
// DefaultRunConfiguration.
func RunConsensus(ctx context.Context, mode, content, filePath string, cfg *RunConfiguration) (*Result, error) {
	return NewEngine().Run(ctx, mode, content, filePath, cfg)
}

// Run executes one consensus run and blocks until it terminates. The number
// of fan-outs never exceeds 1 + MaxDebateRounds.
func (e *Engine) Run(ctx context.Context, mode, content, filePath string, cfg *RunConfiguration) (*Result, error) {
	rc := cfg.WithDefaults()
	runID := uuid.NewString()
	log := e.logger.WithRun(runID).With("mode", mode)

	ctx, span := e.startSpan(ctx, traceSpanRun,
		attribute.String(traceAttrRunID, runID),
		attribute.String(traceAttrMode, mode),
		attribute.StringSlice(traceAttrAgents, rc.Agents),
		attribute.Int(traceAttrMaxRounds, rc.MaxDebateRounds),
	)
	defer span.End()

	res, err := e.run(ctx, runID, log, mode, content, filePath, rc)
	if err != nil {
		log.Error("consensus run failed", "error", err.Error())
		markSpanResult(span, "", err)
		return nil, err
	}
	markSpanResult(span, res.Status, nil)
	span.SetAttributes(attribute.Int(traceAttrRound, res.Round))
	return res, nil
}

func (e *Engine) run(ctx context.Context, runID string, log *logging.Logger, mode, content, filePath string, rc RunConfiguration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	agents := e.resolve(rc.Agents, log)
	e.bus.Publish(event.NewRunStartedEvent(runID, mode, agentNames(agents), rc.MaxDebateRounds))
	log.Info("consensus run started",
		"agents", agentNames(agents),
		"max_debate_rounds", rc.MaxDebateRounds,
		"timeout_ms", rc.Timeout.Milliseconds())

	first, err := e.builder.Verification(mode, content, filePath)
	if err != nil {
		return nil, err
	}

	set := NewResponseSet()
	set.Set(PseudoAgent, fmt.Sprintf("(Original author of the code at %s)", filePath))

	tasks := make([]agent.Task, len(agents))
	for i, a := range agents {
		tasks[i] = agent.Task{Agent: a, Prompt: first}
	}
	succeeded := 0
	for _, r := range e.round(ctx, runID, 0, tasks, rc.Timeout) {
		if r.Succeeded {
			set.Set(r.Agent, r.Output)
			succeeded++
		} else {
			set.SetError(r.Agent, r.Error)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	if succeeded == 0 {
		e.bus.Publish(event.NewRoundCompletedEvent(runID, 0, string(Skipped)))
		return e.finish(runID, log, set, Skipped, Tally{}, 0), nil
	}

	tally := Classify(set.Entries(), e.extractor)
	status := tally.Status()
	e.bus.Publish(event.NewRoundCompletedEvent(runID, 0, string(status)))
	log.WithRound(0).Info("round completed", "status", string(status))
	if status == FullConsensus {
		return e.finish(runID, log, set, status, tally, 0), nil
	}

	for k := 1; k <= rc.MaxDebateRounds; k++ {
		// Every prompt in a round sees the same snapshot of the set.
		peers := set.Peers()
		var debate []agent.Task
		for _, a := range agents {
			if entry, ok := set.Get(a.Name()); !ok || entry.Errored() {
				continue
			}
			p, err := e.builder.Debate(content, peers, a.Name())
			if err != nil {
				return nil, err
			}
			debate = append(debate, agent.Task{Agent: a, Prompt: p})
		}

		roundLog := log.WithRound(k)
		for _, r := range e.round(ctx, runID, k, debate, rc.Timeout) {
			if r.Succeeded {
				set.Set(r.Agent, r.Output)
				continue
			}
			roundLog.WithAgent(r.Agent).Info("keeping previous response after failed debate turn",
				"error", r.Error)
		}
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}

		tally = Classify(set.Entries(), e.extractor)
		status = tally.Status()
		e.bus.Publish(event.NewRoundCompletedEvent(runID, k, string(status)))
		roundLog.Info("round completed", "status", string(status))
		if status == FullConsensus {
			return e.finish(runID, log, set, status, tally, k), nil
		}
	}

	return e.finish(runID, log, set, status, tally, rc.MaxDebateRounds), nil
}

// round performs one fan-out and reports each result.
func (e *Engine) round(ctx context.Context, runID string, round int, tasks []agent.Task, timeout time.Duration) []agent.Result {
	ctx, span := e.startSpan(ctx, traceSpanRound,
		attribute.String(traceAttrRunID, runID),
		attribute.Int(traceAttrRound, round),
	)
	defer span.End()

	results := e.dispatcher.Dispatch(ctx, tasks, timeout)

	var ok, failed int
	for _, r := range results {
		if r.Succeeded {
			ok++
		} else {
			failed++
		}
		e.bus.Publish(event.NewAgentInvokedEvent(runID, round, r.Agent, r.Succeeded, r.Error, r.Duration))
	}
	span.SetAttributes(
		attribute.Int(traceAttrSucceeded, ok),
		attribute.Int(traceAttrFailed, failed),
	)
	return results
}

// finish reports the run from the tally that decided its status, so every
// response is classified once per round.
func (e *Engine) finish(runID string, log *logging.Logger, set *ResponseSet, status Status, tally Tally, round int) *Result {
	entries := set.Snapshot()
	summary, recommendation := Format(status, round, entries, tally)

	e.metrics.ObserveRun(string(status), round)
	e.bus.Publish(event.NewRunTerminatedEvent(runID, string(status), round, recommendation))
	log.Info("consensus run terminated",
		"status", string(status),
		"round", round,
		"errored", len(set.Failed()))

	return &Result{
		RunID:          runID,
		Status:         status,
		Round:          round,
		Summary:        summary,
		Recommendation: recommendation,
		Responses:      entries,
	}
}

// resolve maps configured names to invocable agents. Unknown names and the
// pseudo-agent are dropped.
func (e *Engine) resolve(names []string, log *logging.Logger) []agent.Agent {
	agents, unknown := e.registry.Resolve(names)
	for _, name := range unknown {
		if name != PseudoAgent {
			log.Debug("dropping agent without an invoker", "agent", name)
		}
	}
	out := agents[:0]
	for _, a := range agents {
		if a.Name() != PseudoAgent {
			out = append(out, a)
		}
	}
	return out
}

func agentNames(agents []agent.Agent) []string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name()
	}
	return names
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", errors.ErrCanceled, err)
}
