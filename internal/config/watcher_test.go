package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyWatcher_InitialLoad(t *testing.T) {
	path := writeConfig(t, `
promotion:
  min_shadow_trials: 3
`)

	w, err := NewPolicyWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, 3, w.Policy().Promotion.MinShadowTrials)
}

func TestPolicyWatcher_InitialLoadMissingFile(t *testing.T) {
	w, err := NewPolicyWatcher(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	// Defaults apply until the file appears.
	assert.Equal(t, 20, w.Policy().Promotion.MinShadowTrials)
}

func TestPolicyWatcher_Reload(t *testing.T) {
	path := writeConfig(t, `
promotion:
  min_shadow_trials: 3
`)

	w, err := NewPolicyWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("promotion:\n  min_shadow_trials: 9\n"), 0600))

	require.Eventually(t, func() bool {
		return w.Policy().Promotion.MinShadowTrials == 9
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPolicyWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewPolicyWatcher(filepath.Join(t.TempDir(), "config.yaml"), zap.NewNop())
	require.NoError(t, err)

	w.Stop()
	w.Stop()
}
