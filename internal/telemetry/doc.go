// Package telemetry provides OpenTelemetry instrumentation for
// skillgate.
//
// It owns the OTLP trace and metric providers (graceful degradation
// when the collector endpoint is unreachable, flush on shutdown) and
// the execution Collector that records one append-only data point per
// guarded skill invocation: outcome, latency, token and cost counters,
// the fallback that served the request if any, and the classified
// error code on failure.
package telemetry
