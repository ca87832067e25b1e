package promotion

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/skillgate/internal/promotion"

// Governance performs the actual promotion of a quarantined skill
// artifact into the production registry. External collaborator.
type Governance interface {
	// Promote moves the artifact out of quarantine and returns the new
	// production version.
	Promote(ctx context.Context, skill string) (version string, err error)
}

// TestRunner executes the external fast test subset for a candidate.
// A timeout is a hard failure, not a retry.
type TestRunner interface {
	Run(ctx context.Context, skill string) error
}

// Repair receives candidates that failed the win-rate or test gate for
// evolutionary repair. Submissions are fire-and-forget; their outcome
// never affects the promotion decision that triggered them.
type Repair interface {
	Submit(skill, failureReason string, stats CandidateStats)
}

// SafetyReporter supplies the externally-computed safety-check summary
// included in evidence bundles.
type SafetyReporter interface {
	Summary(ctx context.Context, skill string) map[string]bool
}

// PolicySource yields the current promotion policy. Satisfied by
// *config.PolicyWatcher.
type PolicySource interface {
	Policy() *config.Policy
}

// staticPolicy adapts a fixed policy to PolicySource.
type staticPolicy struct{ p *config.Policy }

func (s staticPolicy) Policy() *config.Policy { return s.p }

// StaticPolicy wraps a fixed policy for callers that do not hot-reload.
func StaticPolicy(p *config.Policy) PolicySource { return staticPolicy{p: p} }

// Evaluator runs the five-gate promotion sequence and owns the audit
// trail around it. Gate failures are business outcomes returned as
// reason codes, never errors.
type Evaluator struct {
	store      *Store
	policies   PolicySource
	governance Governance
	tests      TestRunner
	repair     Repair
	safety     SafetyReporter
	evidence   EvidenceSink
	logger     *zap.Logger

	skipTests bool
	now       func() time.Time

	tracer           trace.Tracer
	meter            metric.Meter
	decisionCounter  metric.Int64Counter
	promotionCounter metric.Int64Counter
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithRepair enables the evolutionary-repair handoff collaborator.
func WithRepair(r Repair) EvaluatorOption {
	return func(e *Evaluator) { e.repair = r }
}

// WithSafetyReporter supplies the safety-check summary source.
func WithSafetyReporter(s SafetyReporter) EvaluatorOption {
	return func(e *Evaluator) { e.safety = s }
}

// WithSkipTests disables the test gate. Intended for unit-test
// harnesses; production configs express this via require_tests_green.
func WithSkipTests(skip bool) EvaluatorOption {
	return func(e *Evaluator) { e.skipTests = skip }
}

// WithClock overrides the evaluator's time source.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates a promotion gate evaluator.
func NewEvaluator(store *Store, policies PolicySource, governance Governance, tests TestRunner, evidence EvidenceSink, logger *zap.Logger, opts ...EvaluatorOption) (*Evaluator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy source is required")
	}
	if governance == nil {
		return nil, fmt.Errorf("governance is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Evaluator{
		store:      store,
		policies:   policies,
		governance: governance,
		tests:      tests,
		evidence:   evidence,
		logger:     logger,
		now:        time.Now,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initMetrics()

	return e, nil
}

func (e *Evaluator) initMetrics() {
	var err error

	e.decisionCounter, err = e.meter.Int64Counter(
		"skillgate.promotion.decisions_total",
		metric.WithDescription("Total number of promotion decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		e.logger.Warn("failed to create decision counter", zap.Error(err))
	}

	e.promotionCounter, err = e.meter.Int64Counter(
		"skillgate.promotion.promotions_total",
		metric.WithDescription("Total number of successful promotions"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		e.logger.Warn("failed to create promotion counter", zap.Error(err))
	}
}

// EvaluateAndPromote runs the gate sequence for a candidate skill and,
// if every gate holds, promotes it through Governance.
//
// The whole load-evaluate-promote-save cycle runs under the store lock,
// so concurrent evaluations cannot race on the daily quota or per-skill
// statistics. An evidence bundle is built and persisted on every path.
func (e *Evaluator) EvaluateAndPromote(ctx context.Context, skill string, outcomes []ShadowOutcome) Decision {
	ctx, span := e.tracer.Start(ctx, "promotion.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("skill", skill))

	policy := e.policies.Policy()

	var promoted bool
	var version, reason string
	var stats CandidateStats

	err := e.store.Update(func(state *State) error {
		// Quota reset must precede the quota check, every evaluation.
		state.ResetIfNewDay(e.now())
		stats = state.StatsFor(skill)

		promoted, version, reason = e.runGates(ctx, skill, policy, state, stats)
		return nil
	})
	if err != nil {
		// State persistence failed after the decision; the decision
		// stands, the quota may under-count until the next save.
		e.logger.Warn("failed to persist promotion state", zap.Error(err))
	}

	bundle := e.buildAndPersistEvidence(ctx, skill, version, promoted, reason, stats, outcomes)

	span.SetAttributes(
		attribute.Bool("promoted", promoted),
		attribute.String("reason", reason),
	)
	if e.decisionCounter != nil {
		e.decisionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("promoted", promoted),
		))
	}

	return Decision{Promoted: promoted, Reason: reason, Bundle: bundle}
}

// runGates evaluates the five gates strictly in order, short-circuiting
// on the first failure. Runs under the store lock.
func (e *Evaluator) runGates(ctx context.Context, skill string, policy *config.Policy, state *State, stats CandidateStats) (promoted bool, version, reason string) {
	// Gate 1: daily quota.
	if state.TodayPromoted >= policy.Promotion.MaxToolsPromotePerDay {
		e.logGateFailure(skill, GateQuota, "quota_exhausted")
		return false, "", "quota_exhausted"
	}

	// Gate 2: risk label.
	risk := policy.RiskOf(skill)
	if !policy.RiskAllowed(risk) {
		reason = "risk_blocked:" + risk
		e.logGateFailure(skill, GateRisk, reason)
		return false, "", reason
	}

	// Gate 3: shadow trial count.
	if stats.Trials < policy.Promotion.MinShadowTrials {
		reason = fmt.Sprintf("not_enough_trials:%d/%d", stats.Trials, policy.Promotion.MinShadowTrials)
		e.logGateFailure(skill, GateTrials, reason)
		return false, "", reason
	}

	// Gate 4: average reward delta. Plain float64 comparison, no
	// epsilon; values landing exactly at the threshold pass.
	if stats.AvgDelta < policy.Promotion.ShadowWinMin {
		reason = fmt.Sprintf("not_winning_enough:avg_delta=%.3f < %.3f", stats.AvgDelta, policy.Promotion.ShadowWinMin)
		e.logGateFailure(skill, GateWinRate, reason)
		e.maybeSubmitRepair(skill, reason, stats, policy)
		return false, "", reason
	}

	// Gate 5: fast test subset.
	if e.testGateEnabled(policy) {
		if err := e.tests.Run(ctx, skill); err != nil {
			e.logger.Warn("test gate failed",
				zap.String("skill", skill),
				zap.Error(err),
			)
			e.maybeSubmitRepair(skill, "tests_red", stats, policy)
			return false, "", "tests_red"
		}
	}

	// All gates held; hand off to governance.
	version, err := e.governance.Promote(ctx, skill)
	if err != nil {
		e.logger.Error("governance promotion failed",
			zap.String("skill", skill),
			zap.Error(err),
		)
		// Quota is not consumed by a failed promotion.
		return false, "", "promotion_failed"
	}

	state.TodayPromoted++
	e.logger.Info("skill promoted",
		zap.String("skill", skill),
		zap.String("version", version),
		zap.Int("today_promoted", state.TodayPromoted),
	)
	if e.promotionCounter != nil {
		e.promotionCounter.Add(ctx, 1)
	}
	return true, version, "promoted:" + version
}

func (e *Evaluator) testGateEnabled(policy *config.Policy) bool {
	if e.skipTests || e.tests == nil {
		return false
	}
	return policy.Promotion.RequireTestsGreen
}

func (e *Evaluator) maybeSubmitRepair(skill, reason string, stats CandidateStats, policy *config.Policy) {
	if e.repair == nil || !policy.Promotion.EnableRepairHandoff {
		return
	}
	// Fire-and-forget: repair outcome never affects this decision.
	go e.repair.Submit(skill, reason, stats)
}

func (e *Evaluator) buildAndPersistEvidence(ctx context.Context, skill, version string, promoted bool, reason string, stats CandidateStats, outcomes []ShadowOutcome) *EvidenceBundle {
	var safety map[string]bool
	if e.safety != nil {
		safety = e.safety.Summary(ctx, skill)
	}

	bundle := BuildEvidence(skill, version, promoted, reason, stats, outcomes, safety, e.now())

	if e.evidence != nil {
		if err := e.evidence.Write(bundle); err != nil {
			// Evidence is best-effort; the decision path never fails
			// on a sink fault.
			e.logger.Warn("failed to persist evidence bundle",
				zap.String("skill", skill),
				zap.String("id", bundle.ID),
				zap.Error(err),
			)
		}
	}
	return bundle
}

func (e *Evaluator) logGateFailure(skill, gate, reason string) {
	e.logger.Info("promotion blocked",
		zap.String("skill", skill),
		zap.String("gate", gate),
		zap.String("reason", reason),
	)
}
