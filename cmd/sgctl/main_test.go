package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgYAML := fmt.Sprintf(`state:
  path: %s/state.json
evidence:
  dir: %s/evidence
manifests:
  dir: %s/manifests
tests:
  skip: true
`, dir, dir, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o600))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "manifests"), 0o700))
	manifest := []byte("name = \"web_search\"\nversion = \"1.1.0\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifests", "web_search.toml"), manifest, 0o600))

	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
	return dir
}

func runCommand(t *testing.T, fn func(*cobra.Command, []string) error, args []string) map[string]any {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	require.NoError(t, fn(cmd, args))

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result
}

func TestRecordAndStats(t *testing.T) {
	setupWorkspace(t)

	result := runCommand(t, runRecord, []string{"web_search", "0.05"})
	assert.Equal(t, float64(1), result["trials"])
	assert.Equal(t, float64(1), result["wins"])
	assert.InDelta(t, 0.05, result["avg_delta"].(float64), 1e-9)

	result = runCommand(t, runRecord, []string{"web_search", "-0.01"})
	assert.Equal(t, float64(2), result["trials"])
	assert.Equal(t, float64(1), result["wins"])

	stats := runCommand(t, runStats, nil)
	require.Contains(t, stats, "stats")
	assert.Contains(t, stats["stats"].(map[string]any), "web_search")
}

func TestRecordRejectsInvalidDelta(t *testing.T) {
	setupWorkspace(t)

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	err := runRecord(cmd, []string{"web_search", "not-a-number"})
	assert.Error(t, err)
}

func TestEvaluateBlocksOnTrials(t *testing.T) {
	setupWorkspace(t)
	skipTests = true
	t.Cleanup(func() { skipTests = false })

	runCommand(t, runRecord, []string{"web_search", "0.05"})

	result := runCommand(t, runEvaluate, []string{"web_search"})
	assert.Equal(t, false, result["promoted"])
	assert.Equal(t, "not_enough_trials:1/20", result["reason"])
}

func TestEvidenceEmpty(t *testing.T) {
	setupWorkspace(t)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runEvidence(cmd, []string{"web_search"}))
	assert.Equal(t, "null\n", out.String())
}
