package consensus

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "github.com/Iron-Ham/consensus/internal/consensus"

	traceSpanRun   = "consensus.run"
	traceSpanRound = "consensus.round"

	traceAttrRunID     = "consensus.run_id"
	traceAttrMode      = "consensus.mode"
	traceAttrRound     = "consensus.round"
	traceAttrAgents    = "consensus.agents"
	traceAttrMaxRounds = "consensus.max_debate_rounds"
	traceAttrStatus    = "consensus.status"
	traceAttrSucceeded = "consensus.succeeded"
	traceAttrFailed    = "consensus.failed"
)

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func markSpanResult(span trace.Span, status Status, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if status != "" {
		span.SetAttributes(attribute.String(traceAttrStatus, string(status)))
	}
	span.SetStatus(codes.Ok, "")
}
