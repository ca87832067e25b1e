// Package guard wraps skill execution with the runtime protection
// path: circuit breaker check, bounded retries with exponential
// backoff and jitter, error classification, a single remediation
// retry, targeted and generic fallback dispatch, and exactly-once
// terminal telemetry and breaker recording.
//
// Every invocation builds a decision trace of its state transitions;
// the trace is emitted to a sink only when one is configured.
package guard
