// Package logging provides structured logging for consensus runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. A consensus run fans out to several external agent
// processes across multiple rounds, and the logs are the only place where
// per-invocation detail (duration, exit status, stderr) is kept once the
// run has returned its result.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/state", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithRun("6f1c...")
//	runLogger.WithAgent("gemini").WithRound(1).Info("agent responded", "duration_ms", 812)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"agent responded","run_id":"6f1c...","agent":"gemini","round":1,"duration_ms":812}
//
// # Testing
//
// Use [NopLogger] to discard all output, or [NewLoggerWriter] to capture it.
//
// # Thread Safety
//
// [Logger] is safe for concurrent use; the dispatcher logs from one
// goroutine per agent invocation.
package logging
