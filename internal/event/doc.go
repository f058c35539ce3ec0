// Package event provides a pub-sub event bus for observing consensus runs.
//
// The engine publishes events at fixed points of the debate loop:
//
//   - [RunStartedEvent] ("consensus.started") before round 0
//   - [AgentInvokedEvent] ("consensus.agent_invoked") per invocation result
//   - [RoundCompletedEvent] ("consensus.round_completed") after each status computation
//   - [RunTerminatedEvent] ("consensus.terminated") when the result is built
//
// Handlers run synchronously on the engine goroutine, never concurrently with
// the ResponseSet being mutated, and a panicking handler never aborts a run.
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeRunTerminated, func(e event.Event) {
//	    done := e.(event.RunTerminatedEvent)
//	    fmt.Println(done.Status, done.Round)
//	})
package event
