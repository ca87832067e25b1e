package promotion

import (
	"errors"
	"time"
)

// Gate names, in evaluation order. The evaluator short-circuits on the
// first failing gate; the names show up in evidence bundles and logs.
const (
	GateQuota   = "quota"
	GateRisk    = "risk"
	GateTrials  = "trials"
	GateWinRate = "win_rate"
	GateTests   = "tests"
)

// gateOrder is the fixed evaluation sequence.
var gateOrder = []string{GateQuota, GateRisk, GateTrials, GateWinRate, GateTests}

// ErrStateCorrupted indicates the persisted state file could not be
// parsed. Callers never see it from Load, which degrades to an empty
// state, but it is used for logging.
var ErrStateCorrupted = errors.New("promotion state file corrupted")

// CandidateStats accumulates shadow-trial outcomes for one candidate.
//
// AvgDelta is a running mean maintained online; after N recorded deltas
// it equals the arithmetic mean of those N deltas regardless of order.
type CandidateStats struct {
	Trials   int     `json:"trials"`
	Wins     int     `json:"wins"`
	AvgDelta float64 `json:"avg_delta"`
}

// State is the process-wide promotion state persisted between runs.
type State struct {
	Stats         map[string]*CandidateStats `json:"stats"`
	TodayPromoted int                        `json:"today_promoted"`
	LastReset     string                     `json:"last_reset"` // YYYY-MM-DD
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Stats: make(map[string]*CandidateStats)}
}

// ResetIfNewDay zeroes the daily promotion counter once per calendar
// day. It must run before every quota check.
func (s *State) ResetIfNewDay(now time.Time) {
	today := now.Format("2006-01-02")
	if s.LastReset != today {
		s.TodayPromoted = 0
		s.LastReset = today
	}
}

// Record adds one shadow-trial delta for the named candidate, creating
// its stats entry on first use. Wins count strictly positive deltas.
func (s *State) Record(name string, delta float64) {
	if s.Stats == nil {
		s.Stats = make(map[string]*CandidateStats)
	}
	st, ok := s.Stats[name]
	if !ok {
		st = &CandidateStats{}
		s.Stats[name] = st
	}
	st.Trials++
	if delta > 0 {
		st.Wins++
	}
	st.AvgDelta += (delta - st.AvgDelta) / float64(st.Trials)
}

// StatsFor returns the stats for a candidate, or zero stats when none
// have been recorded.
func (s *State) StatsFor(name string) CandidateStats {
	if st, ok := s.Stats[name]; ok {
		return *st
	}
	return CandidateStats{}
}

// ShadowOutcome is one recorded comparison of a candidate against the
// production baseline, without affecting production traffic.
type ShadowOutcome struct {
	Timestamp       time.Time `json:"timestamp"`
	BaselineReward  float64   `json:"baseline_reward"`
	CandidateReward float64   `json:"candidate_reward"`
	Delta           float64   `json:"delta"`
	LatencyMS       float64   `json:"latency_ms"`
	Context         string    `json:"context,omitempty"`
}

// Performance aggregates shadow-trial statistics for an evidence bundle.
type Performance struct {
	Trials       int     `json:"trials"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgDelta     float64 `json:"avg_delta"`
	MedianDelta  float64 `json:"median_delta"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	P99LatencyMS float64 `json:"p99_latency_ms"`
}

// DecisionRecord is the audit record of one promotion decision.
type DecisionRecord struct {
	Promoted    bool      `json:"promoted"`
	Reason      string    `json:"reason"`
	GatesPassed []string  `json:"gates_passed"`
	GatesFailed []string  `json:"gates_failed"`
	Timestamp   time.Time `json:"timestamp"`
	Approver    string    `json:"approver"`
}

// EvidenceBundle is the immutable audit record produced once per
// promotion decision, success or failure. It is never mutated after
// creation.
type EvidenceBundle struct {
	ID             string          `json:"id"`
	Skill          string          `json:"skill"`
	Version        string          `json:"version,omitempty"`
	ShadowOutcomes []ShadowOutcome `json:"shadow_outcomes"`
	Performance    Performance     `json:"performance"`
	SafetyChecks   map[string]bool `json:"safety_checks,omitempty"`
	Decision       DecisionRecord  `json:"decision"`
}

// Decision is the result of one EvaluateAndPromote call.
type Decision struct {
	Promoted bool
	Reason   string
	Bundle   *EvidenceBundle
}
