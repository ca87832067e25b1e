// Package main implements the sgctl CLI for manual promotion
// operations against the local skillgate state.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/config"
	"github.com/fyrsmithlabs/skillgate/internal/promotion"
	"github.com/fyrsmithlabs/skillgate/internal/registry"
)

var (
	// configPath is the skillgate config file; empty uses the default
	// location and built-in defaults.
	configPath string
	// skipTests bypasses the test gate for local evaluation runs.
	skipTests bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sgctl",
	Short: "CLI for skillgate promotion operations",
	Long: `sgctl is a command-line interface for the skillgate control plane.
It records shadow outcomes, runs promotion gate evaluations, and
inspects promotion state and evidence bundles on the local filesystem.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	evaluateCmd.Flags().BoolVar(&skipTests, "skip-tests", false, "bypass the test gate")
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(evidenceCmd)
}

// evaluateCmd runs the promotion gate sequence for a candidate skill
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <skill>",
	Short: "Run the promotion gates for a candidate skill",
	Long: `Run the five-gate promotion sequence for a candidate skill and print
the decision with its reason code.

Examples:
  # Evaluate a candidate
  sgctl evaluate web_search

  # Evaluate without running the test gate
  sgctl evaluate web_search --skip-tests`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

// recordCmd records one shadow-trial outcome
var recordCmd = &cobra.Command{
	Use:   "record <skill> <delta>",
	Short: "Record a shadow-trial reward delta for a candidate",
	Long: `Record one shadow-trial outcome: the reward delta of the candidate
against the baseline. Positive deltas count as wins.

Examples:
  sgctl record web_search 0.05
  sgctl record web_search -- -0.01`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

// statsCmd prints the promotion state snapshot
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show promotion state and per-candidate statistics",
	RunE:  runStats,
}

// evidenceCmd lists persisted evidence bundles for a skill
var evidenceCmd = &cobra.Command{
	Use:   "evidence <skill>",
	Short: "List evidence bundles for a skill",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidence,
}

// loadConfig loads the config tree and a quiet logger for CLI use.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := zap.NewNop()
	return cfg, logger, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	skill := args[0]

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	manifests, err := registry.LoadManifestDir(cfg.Manifests.Dir)
	if err != nil {
		return fmt.Errorf("loading manifests: %w", err)
	}

	store := promotion.NewStore(cfg.State.Path, logger)
	policy := config.LoadPolicy(configPath, logger)
	governance := promotion.NewManifestGovernance(manifests, logger)
	tests := promotion.NewCommandTestRunner(cfg.Tests, logger)
	evidence := promotion.NewFileEvidenceStore(cfg.Evidence.Dir)

	evaluator, err := promotion.NewEvaluator(store, promotion.StaticPolicy(policy), governance, tests, evidence, logger,
		promotion.WithSkipTests(skipTests || cfg.Tests.Skip),
	)
	if err != nil {
		return err
	}

	decision := evaluator.EvaluateAndPromote(cmd.Context(), skill, nil)
	return printJSON(cmd, map[string]any{
		"skill":    skill,
		"promoted": decision.Promoted,
		"reason":   decision.Reason,
	})
}

func runRecord(cmd *cobra.Command, args []string) error {
	skill := args[0]
	delta, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", args[1], err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store := promotion.NewStore(cfg.State.Path, logger)
	if err := store.Record(skill, delta); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}

	stats := store.Snapshot().StatsFor(skill)
	return printJSON(cmd, map[string]any{
		"skill":     skill,
		"trials":    stats.Trials,
		"wins":      stats.Wins,
		"avg_delta": stats.AvgDelta,
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store := promotion.NewStore(cfg.State.Path, logger)
	return printJSON(cmd, store.Snapshot())
}

func runEvidence(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	bundles, err := promotion.NewFileEvidenceStore(cfg.Evidence.Dir).List(args[0])
	if err != nil {
		return fmt.Errorf("listing evidence: %w", err)
	}
	return printJSON(cmd, bundles)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
