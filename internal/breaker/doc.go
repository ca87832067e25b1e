// Package breaker provides a per-skill circuit breaker keyed on recent
// error rate.
//
// Each skill gets its own sliding window of execution outcomes. When
// the failure fraction over that window exceeds the configured
// threshold (with at least MinSamples observed), the circuit opens and
// executions should be short-circuited. An open circuit closes
// automatically once the cooldown elapses without further failures;
// each failure recorded while open restarts the cooldown.
package breaker
