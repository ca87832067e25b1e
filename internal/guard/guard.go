package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/config"
	"github.com/fyrsmithlabs/skillgate/internal/registry"
	"github.com/fyrsmithlabs/skillgate/internal/taxonomy"
	"github.com/fyrsmithlabs/skillgate/internal/telemetry"
)

// GuardedSkill wraps a skill with the full runtime protection path:
// circuit check, bounded retries with backoff, error classification,
// one remediation retry, targeted and generic fallback dispatch, and
// terminal telemetry recording.
type GuardedSkill struct {
	skill    registry.Skill
	manifest *registry.Manifest
	intent   string

	breaker    CircuitBreaker
	classifier ErrorClassifier
	dispatcher FallbackDispatcher
	recorder   ExecutionRecorder
	traceSink  TraceSink
	backoff    *Backoff
	logger     *zap.Logger
}

// Option configures a GuardedSkill.
type Option func(*GuardedSkill)

// WithIntent sets the intent carried into fallback visibility checks.
func WithIntent(intent string) Option {
	return func(g *GuardedSkill) { g.intent = intent }
}

// WithTraceSink sets the sink decision traces are emitted to. Traces
// are built regardless; only emission depends on this.
func WithTraceSink(sink TraceSink) Option {
	return func(g *GuardedSkill) { g.traceSink = sink }
}

// WithBackoff overrides the default backoff schedule.
func WithBackoff(b *Backoff) Option {
	return func(g *GuardedSkill) { g.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *GuardedSkill) { g.logger = logger }
}

// NewGuardedSkill wraps a skill. The manifest, breaker, classifier,
// dispatcher, and recorder are all required.
func NewGuardedSkill(
	skill registry.Skill,
	manifest *registry.Manifest,
	cb CircuitBreaker,
	classifier ErrorClassifier,
	dispatcher FallbackDispatcher,
	recorder ExecutionRecorder,
	opts ...Option,
) (*GuardedSkill, error) {
	if skill == nil {
		return nil, fmt.Errorf("skill is required")
	}
	if manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if cb == nil {
		return nil, fmt.Errorf("circuit breaker is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("error classifier is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("fallback dispatcher is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("execution recorder is required")
	}

	g := &GuardedSkill{
		skill:      skill,
		manifest:   manifest,
		breaker:    cb,
		classifier: classifier,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.backoff == nil {
		g.backoff = NewBackoff(config.GuardConfig{BaseBackoffMS: 300, JitterMS: 150})
	}
	return g, nil
}

// Name returns the wrapped skill's name.
func (g *GuardedSkill) Name() string {
	return g.skill.Name()
}

// invocation carries the per-call state through the guard path.
type invocation struct {
	input registry.Input
	start time.Time
	trace []TraceEntry

	lastErr error
	code    taxonomy.Code
}

// Execute runs one guarded invocation. It returns the skill's (or a
// fallback's) output, a *CircuitOpenError when the circuit is open, or
// the original skill error once every remediation path is exhausted.
func (g *GuardedSkill) Execute(ctx context.Context, input registry.Input) (*registry.Output, error) {
	inv := &invocation{input: input, start: time.Now()}
	name := g.skill.Name()

	// Circuit check always precedes the first attempt.
	if g.breaker.IsOpen(name) {
		status := g.breaker.GetStatus(name)
		g.step(inv, "circuit_check", "recent error rate over threshold", "open")
		g.emit(ctx, inv)
		return nil, &CircuitOpenError{
			Skill:             name,
			ErrorRate:         status.ErrorRate,
			CooldownRemaining: status.CooldownRemaining,
		}
	}
	g.step(inv, "circuit_check", "error rate within threshold", "closed")

	out, err := g.runAttempts(ctx, inv)
	if err == nil {
		return g.success(ctx, inv, out, "")
	}
	if ctx.Err() != nil {
		// Cancelled mid-backoff: no fallback, surface the cause.
		return g.failure(ctx, inv)
	}

	inv.code = g.classifier.Classify(inv.lastErr)
	g.step(inv, "classify", "retries exhausted", string(inv.code))

	if out, fb, ok := g.runFallbacks(ctx, inv); ok {
		return g.success(ctx, inv, out, fb)
	}
	return g.failure(ctx, inv)
}

// runAttempts drives the bounded retry loop, including the single
// remediation retry granted after classification of the final attempt.
func (g *GuardedSkill) runAttempts(ctx context.Context, inv *invocation) (*registry.Output, error) {
	attempts := g.manifest.Retries.Attempts
	if attempts < 1 {
		attempts = 1
	}

	remediated := false
	for attempt := 1; ; attempt++ {
		out, err := g.skill.Execute(ctx, inv.input)
		if err == nil {
			g.step(inv, "execute", fmt.Sprintf("attempt %d", attempt), "success")
			return out, nil
		}
		inv.lastErr = err
		g.step(inv, "execute", fmt.Sprintf("attempt %d", attempt), "error: "+err.Error())

		extra := 0
		if remediated {
			extra = 1
		}
		if attempt >= attempts+extra {
			// Exhausted; check whether remediation grants one more
			// bounded retry for this error class.
			if !remediated {
				code := g.classifier.Classify(err)
				rem := g.classifier.Remediation(code)
				if rem.RetryRecommended {
					remediated = true
					g.step(inv, "remediation_retry", string(code)+": "+rem.Hint, "granted")
					if serr := g.wait(ctx, inv, attempt); serr != nil {
						return nil, inv.lastErr
					}
					continue
				}
			}
			return nil, inv.lastErr
		}

		if serr := g.wait(ctx, inv, attempt); serr != nil {
			return nil, inv.lastErr
		}
	}
}

// wait sleeps the backoff delay for the given attempt, honoring
// cancellation.
func (g *GuardedSkill) wait(ctx context.Context, inv *invocation, attempt int) error {
	delay := g.backoff.Delay(attempt)
	g.step(inv, "backoff", fmt.Sprintf("attempt %d failed", attempt), fmt.Sprintf("sleeping %s", delay))
	if err := sleep(ctx, delay); err != nil {
		g.step(inv, "backoff", "context done during backoff", "cancelled")
		inv.lastErr = err
		return err
	}
	return nil
}

// runFallbacks tries the targeted fallback for the classified code,
// then the manifest's remaining fallbacks in declared order. Returns
// the serving output and fallback name on success.
func (g *GuardedSkill) runFallbacks(ctx context.Context, inv *invocation) (*registry.Output, string, bool) {
	tried := ""
	if name := g.classifier.FallbackForError(inv.code, g.manifest); name != "" {
		fb := g.manifest.FallbackFor(name)
		out, err := g.dispatcher.Dispatch(ctx, fb, inv.input, g.intent)
		if err == nil {
			g.step(inv, "targeted_fallback", "routed by error code "+string(inv.code), "served by "+name)
			return out, name, true
		}
		g.step(inv, "targeted_fallback", "routed by error code "+string(inv.code), "failed: "+err.Error())
		g.logger.Warn("targeted fallback failed",
			zap.String("skill", g.skill.Name()),
			zap.String("fallback", name),
			zap.Error(err),
		)
		tried = name
	}

	for _, fb := range g.manifest.Fallbacks {
		if fb.Skill == tried {
			continue
		}
		out, err := g.dispatcher.Dispatch(ctx, fb, inv.input, g.intent)
		if err == nil {
			g.step(inv, "generic_fallback", "declared order", "served by "+fb.Skill)
			return out, fb.Skill, true
		}
		g.step(inv, "generic_fallback", "declared order", fb.Skill+" failed: "+err.Error())
		g.logger.Warn("fallback failed",
			zap.String("skill", g.skill.Name()),
			zap.String("fallback", fb.Skill),
			zap.Error(err),
		)
	}
	return nil, "", false
}

// success records the terminal success exactly once. A fallback success
// counts as the original skill functioning from the breaker's view.
func (g *GuardedSkill) success(ctx context.Context, inv *invocation, out *registry.Output, fallback string) (*registry.Output, error) {
	name := g.skill.Name()
	g.breaker.RecordExecution(name, true)
	rec := telemetry.ExecutionRecord{
		Skill:    name,
		Model:    g.manifest.Model,
		Success:  true,
		Latency:  time.Since(inv.start),
		Fallback: fallback,
	}
	if out != nil {
		rec.Tokens = out.Tokens
		rec.CostUSD = out.CostUSD
	}
	g.recorder.RecordExecution(ctx, rec)
	g.emit(ctx, inv)
	return out, nil
}

// failure records the terminal failure exactly once and re-returns the
// original error.
func (g *GuardedSkill) failure(ctx context.Context, inv *invocation) (*registry.Output, error) {
	name := g.skill.Name()
	g.step(inv, "terminal_failure", "no fallback served the request", "error returned to caller")
	g.breaker.RecordExecution(name, false)
	g.recorder.RecordExecution(ctx, telemetry.ExecutionRecord{
		Skill:     name,
		Model:     g.manifest.Model,
		Success:   false,
		Latency:   time.Since(inv.start),
		ErrorCode: string(inv.code),
	})
	g.emit(ctx, inv)
	return nil, inv.lastErr
}

func (g *GuardedSkill) step(inv *invocation, step, rationale, outcome string) {
	inv.trace = append(inv.trace, TraceEntry{Step: step, Rationale: rationale, Outcome: outcome})
}

func (g *GuardedSkill) emit(ctx context.Context, inv *invocation) {
	if g.traceSink != nil {
		g.traceSink.Emit(ctx, g.skill.Name(), inv.trace)
	}
}
