// Package metrics exposes Prometheus collectors describing consensus runs
// and the agent invocations inside them.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consensus"

// Outcome labels for agent invocations.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeNotFound = "not_found"
	OutcomeCanceled = "canceled"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	runs               *prometheus.CounterVec
	debateRounds       prometheus.Histogram
}

// New constructs Metrics and registers them with reg. When a collector with
// the same description is already registered, the existing one is reused so
// several engines can share a registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_invocations_total",
				Help:      "Agent process invocations by outcome.",
			},
			[]string{"agent", "outcome"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_invocation_duration_seconds",
				Help:      "Wall-clock duration of agent process invocations.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
			},
			[]string{"agent"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed consensus runs by final status.",
			},
			[]string{"status"},
		),
		debateRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "debate_rounds",
				Help:      "Round at which consensus runs terminated.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
		),
	}

	var err error
	m.invocations, err = register(reg, m.invocations)
	if err != nil {
		return nil, err
	}
	m.invocationDuration, err = register(reg, m.invocationDuration)
	if err != nil {
		return nil, err
	}
	m.runs, err = register(reg, m.runs)
	if err != nil {
		return nil, err
	}
	m.debateRounds, err = register(reg, m.debateRounds)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveInvocation records one agent invocation.
func (m *Metrics) ObserveInvocation(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(agent, outcome).Inc()
	m.invocationDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveRun records a terminated run.
func (m *Metrics) ObserveRun(status string, round int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.debateRounds.Observe(float64(round))
}
