// Package promotion decides whether shadow-tested candidate skills
// become production-eligible.
//
// Candidates accumulate shadow-trial statistics in a file-backed Store.
// The Evaluator runs a fixed five-gate sequence against those
// statistics and the current policy: daily quota, risk label, trial
// count, average reward delta, and the external fast test subset. Gates
// evaluate strictly in order and short-circuit on the first failure
// with a stable reason code; gate failures are business outcomes, not
// errors.
//
// Every decision, pass or fail, produces an immutable EvidenceBundle
// persisted through an EvidenceSink. Evidence writes are best-effort:
// a sink fault is logged and never blocks the decision path.
package promotion
