package promotion

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// BuildEvidence constructs the audit bundle for one promotion decision.
// It is a pure function of its inputs; persistence is the caller's
// concern.
//
// Gate pass/fail lists are re-derived from the reason code: every gate
// evaluated before the short-circuit point is marked passed, the
// short-circuiting gate is marked failed, and gates after it appear in
// neither list because they were never reached.
func BuildEvidence(skill, version string, promoted bool, reason string, stats CandidateStats, outcomes []ShadowOutcome, safety map[string]bool, now time.Time) *EvidenceBundle {
	passed, failed := deriveGates(reason)

	return &EvidenceBundle{
		ID:             uuid.New().String(),
		Skill:          skill,
		Version:        version,
		ShadowOutcomes: outcomes,
		Performance:    buildPerformance(stats, outcomes),
		SafetyChecks:   safety,
		Decision: DecisionRecord{
			Promoted:    promoted,
			Reason:      reason,
			GatesPassed: passed,
			GatesFailed: failed,
			Timestamp:   now.UTC(),
			Approver:    "automatic",
		},
	}
}

// deriveGates maps a decision reason back to the gates that held and
// the gate that short-circuited.
func deriveGates(reason string) (passed, failed []string) {
	failedGate := ""
	switch {
	case strings.HasPrefix(reason, "promoted:"), reason == "promotion_failed":
		// All gates held; promotion_failed is a governance fault, not
		// a gate outcome.
		return append([]string{}, gateOrder...), []string{}
	case reason == "quota_exhausted":
		failedGate = GateQuota
	case strings.HasPrefix(reason, "risk_blocked:"):
		failedGate = GateRisk
	case strings.HasPrefix(reason, "not_enough_trials:"):
		failedGate = GateTrials
	case strings.HasPrefix(reason, "not_winning_enough:"):
		failedGate = GateWinRate
	case reason == "tests_red":
		failedGate = GateTests
	default:
		return []string{}, []string{}
	}

	passed = []string{}
	for _, gate := range gateOrder {
		if gate == failedGate {
			break
		}
		passed = append(passed, gate)
	}
	return passed, []string{failedGate}
}

func buildPerformance(stats CandidateStats, outcomes []ShadowOutcome) Performance {
	perf := Performance{
		Trials:   stats.Trials,
		Wins:     stats.Wins,
		Losses:   stats.Trials - stats.Wins,
		AvgDelta: stats.AvgDelta,
	}
	if stats.Trials > 0 {
		perf.WinRate = float64(stats.Wins) / float64(stats.Trials)
	}

	if len(outcomes) > 0 {
		deltas := make([]float64, len(outcomes))
		latencies := make([]float64, len(outcomes))
		for i, o := range outcomes {
			deltas[i] = o.Delta
			latencies[i] = o.LatencyMS
		}
		// Median over the raw deltas, not the running mean.
		perf.MedianDelta = median(deltas)
		perf.P95LatencyMS = percentile(latencies, 0.95)
		perf.P99LatencyMS = percentile(latencies, 0.99)
	}
	return perf
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// EvidenceSink persists or forwards evidence bundles. Failures are the
// sink's to report; the evaluator logs and continues, because evidence
// is best-effort while the decision path is not.
type EvidenceSink interface {
	Write(bundle *EvidenceBundle) error
}

// FileEvidenceStore writes one JSON document per decision under a
// directory, keyed by skill name and timestamp.
type FileEvidenceStore struct {
	dir string
}

// NewFileEvidenceStore creates a file-backed evidence store.
func NewFileEvidenceStore(dir string) *FileEvidenceStore {
	return &FileEvidenceStore{dir: dir}
}

// Write persists the bundle.
func (f *FileEvidenceStore) Write(bundle *EvidenceBundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal evidence bundle: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create evidence directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%s.json",
		bundle.Skill,
		bundle.Decision.Timestamp.Format("20060102T150405Z"),
		bundle.ID[:8],
	)
	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write evidence bundle: %w", err)
	}
	return nil
}

// List returns all persisted bundles for a skill, newest last.
func (f *FileEvidenceStore) List(skill string) ([]*EvidenceBundle, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read evidence directory: %w", err)
	}

	var bundles []*EvidenceBundle
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), skill+"-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue
		}
		var bundle EvidenceBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			continue
		}
		bundles = append(bundles, &bundle)
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Decision.Timestamp.Before(bundles[j].Decision.Timestamp)
	})
	return bundles, nil
}

// NATSEvidencePublisher forwards evidence bundles to a NATS subject so
// dashboards and audit consumers can observe decisions live.
type NATSEvidencePublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSEvidencePublisher creates a publisher on an existing connection.
func NewNATSEvidencePublisher(conn *nats.Conn, subject string, logger *zap.Logger) *NATSEvidencePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSEvidencePublisher{conn: conn, subject: subject, logger: logger}
}

// Write publishes the bundle to <subject>.<skill>.
func (p *NATSEvidencePublisher) Write(bundle *EvidenceBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence bundle: %w", err)
	}
	subject := p.subject + "." + bundle.Skill
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish evidence bundle: %w", err)
	}
	p.logger.Debug("published evidence bundle",
		zap.String("subject", subject),
		zap.String("id", bundle.ID),
	)
	return nil
}

// MultiSink fans a bundle out to several sinks, returning the first
// error after attempting all of them.
type MultiSink []EvidenceSink

// Write implements EvidenceSink.
func (m MultiSink) Write(bundle *EvidenceBundle) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Write(bundle); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
