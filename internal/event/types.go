// Package event defines lifecycle events published during a consensus run.
package event

import "time"

// Event types published by the consensus engine.
const (
	TypeRunStarted     = "consensus.started"
	TypeAgentInvoked   = "consensus.agent_invoked"
	TypeRoundCompleted = "consensus.round_completed"
	TypeRunTerminated  = "consensus.terminated"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier, "category.action".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// RunStartedEvent is emitted once, before the first fan-out.
type RunStartedEvent struct {
	baseEvent
	RunID     string
	Mode      string
	Agents    []string
	MaxRounds int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, mode string, agents []string, maxRounds int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Mode:      mode,
		Agents:    append([]string(nil), agents...),
		MaxRounds: maxRounds,
	}
}

// AgentInvokedEvent is emitted for every completed agent invocation,
// successful or not.
type AgentInvokedEvent struct {
	baseEvent
	RunID     string
	Round     int
	Agent     string
	Succeeded bool
	Error     string
	Duration  time.Duration
}

// NewAgentInvokedEvent creates an AgentInvokedEvent.
func NewAgentInvokedEvent(runID string, round int, agent string, succeeded bool, errText string, d time.Duration) AgentInvokedEvent {
	return AgentInvokedEvent{
		baseEvent: newBaseEvent(TypeAgentInvoked),
		RunID:     runID,
		Round:     round,
		Agent:     agent,
		Succeeded: succeeded,
		Error:     errText,
		Duration:  d,
	}
}

// RoundCompletedEvent is emitted after each round's status is computed.
type RoundCompletedEvent struct {
	baseEvent
	RunID  string
	Round  int
	Status string
}

// NewRoundCompletedEvent creates a RoundCompletedEvent.
func NewRoundCompletedEvent(runID string, round int, status string) RoundCompletedEvent {
	return RoundCompletedEvent{
		baseEvent: newBaseEvent(TypeRoundCompleted),
		RunID:     runID,
		Round:     round,
		Status:    status,
	}
}

// RunTerminatedEvent is emitted once, when the result is built.
type RunTerminatedEvent struct {
	baseEvent
	RunID          string
	Status         string
	Round          int
	Recommendation string
}

// NewRunTerminatedEvent creates a RunTerminatedEvent.
func NewRunTerminatedEvent(runID, status string, round int, recommendation string) RunTerminatedEvent {
	return RunTerminatedEvent{
		baseEvent:      newBaseEvent(TypeRunTerminated),
		RunID:          runID,
		Status:         status,
		Round:          round,
		Recommendation: recommendation,
	}
}
