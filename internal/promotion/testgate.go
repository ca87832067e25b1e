package promotion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/config"
)

// ErrTestsTimedOut indicates the fast test subset exceeded its
// configured timeout. Treated as a hard failure by the test gate.
var ErrTestsTimedOut = errors.New("test run timed out")

// CommandTestRunner runs the external fast test subset as a subprocess.
// The command, arguments and timeout come from configuration so unit
// harnesses and CI can substitute targets and filters.
type CommandTestRunner struct {
	cfg    config.TestGateConfig
	logger *zap.Logger
}

// NewCommandTestRunner creates a test runner from config.
func NewCommandTestRunner(cfg config.TestGateConfig, logger *zap.Logger) *CommandTestRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &CommandTestRunner{cfg: cfg, logger: logger}
}

// Run implements TestRunner.
func (r *CommandTestRunner) Run(ctx context.Context, skill string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	// The target skill is exposed to the test command via environment
	// so harnesses can filter their subset.
	cmd.Env = append(os.Environ(), "SKILLGATE_TEST_TARGET="+skill)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			r.logger.Warn("test run timed out",
				zap.String("skill", skill),
				zap.Duration("timeout", r.cfg.Timeout),
			)
			return fmt.Errorf("%w after %s", ErrTestsTimedOut, r.cfg.Timeout)
		}
		r.logger.Warn("test run failed",
			zap.String("skill", skill),
			zap.Duration("elapsed", elapsed),
			zap.ByteString("output", tail(output, 2048)),
			zap.Error(err),
		)
		return fmt.Errorf("test run failed: %w", err)
	}

	r.logger.Debug("test run passed",
		zap.String("skill", skill),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// tail returns at most n trailing bytes of b; test output can be large
// and only the end matters for diagnosis.
func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
