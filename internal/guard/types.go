package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/skillgate/internal/breaker"
	"github.com/fyrsmithlabs/skillgate/internal/registry"
	"github.com/fyrsmithlabs/skillgate/internal/taxonomy"
	"github.com/fyrsmithlabs/skillgate/internal/telemetry"
)

// Errors for guard and dispatcher operations.
var (
	// ErrFallbackMasked means the current intent is not permitted to
	// invoke the fallback skill under its visibility rules.
	ErrFallbackMasked = errors.New("fallback masked for intent")
)

// CircuitOpenError is returned when a skill's circuit is open. No
// execution attempt, retry, or fallback happens; this is the only path
// where the guard surfaces its own error type instead of the skill's.
type CircuitOpenError struct {
	Skill             string
	ErrorRate         float64
	CooldownRemaining float64
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for skill %s (error rate %.2f, cooldown %.1fs remaining)",
		e.Skill, e.ErrorRate, e.CooldownRemaining)
}

// CircuitBreaker is the breaker surface the guard consumes.
type CircuitBreaker interface {
	IsOpen(name string) bool
	GetStatus(name string) breaker.Status
	RecordExecution(name string, success bool)
}

// ErrorClassifier is the taxonomy surface the guard consumes.
type ErrorClassifier interface {
	Classify(err error) taxonomy.Code
	Remediation(code taxonomy.Code) taxonomy.Remediation
	FallbackForError(code taxonomy.Code, manifest *registry.Manifest) string
}

// ExecutionRecorder receives one record per terminal outcome.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, rec telemetry.ExecutionRecord)
}

// FallbackDispatcher resolves and invokes a fallback skill.
type FallbackDispatcher interface {
	Dispatch(ctx context.Context, fb registry.FallbackConfig, input registry.Input, intent string) (*registry.Output, error)
}

// TraceEntry is one state transition in an invocation's decision trace.
// The trace records why a particular path was taken; it is always
// built, and emitted only when a sink is configured.
type TraceEntry struct {
	Step      string `json:"step"`
	Rationale string `json:"rationale"`
	Outcome   string `json:"outcome"`
}

// TraceSink receives the completed decision trace of an invocation.
type TraceSink interface {
	Emit(ctx context.Context, skill string, trace []TraceEntry)
}
