package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/registry"
)

// Dispatcher resolves fallback skills from the registry and invokes
// them under the same visibility rules a directly-requested skill
// would face.
type Dispatcher struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(reg *registry.Registry, logger *zap.Logger) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: reg, logger: logger}, nil
}

// Dispatch invokes the fallback skill named in fb with the original
// input mapped through fb.ArgsMap. Without a map the input passes
// through unchanged; with one, only mapped keys are carried and
// missing source keys are silently dropped. Errors from the fallback
// itself are returned to the caller, which treats them as "this
// fallback failed".
func (d *Dispatcher) Dispatch(ctx context.Context, fb registry.FallbackConfig, input registry.Input, intent string) (*registry.Output, error) {
	entry, err := d.registry.Get(fb.Skill)
	if err != nil {
		return nil, err
	}
	if !entry.Manifest.Visibility.Permits(intent) {
		return nil, fmt.Errorf("%w: skill %s, intent %q", ErrFallbackMasked, fb.Skill, intent)
	}

	mapped := mapArgs(fb, input)

	d.logger.Info("dispatching fallback",
		zap.String("skill", fb.Skill),
		zap.String("intent", intent),
	)
	start := time.Now()
	out, err := entry.Skill.Execute(ctx, mapped)
	d.logger.Info("fallback finished",
		zap.String("skill", fb.Skill),
		zap.Duration("latency", time.Since(start)),
		zap.Bool("success", err == nil),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mapArgs shapes the original input for the fallback. The map is
// {fallbackField: originalField}; unmapped original keys are dropped,
// mapped fields whose source key is absent are omitted.
func mapArgs(fb registry.FallbackConfig, input registry.Input) registry.Input {
	if len(fb.ArgsMap) == 0 {
		return input
	}
	mapped := make(registry.Input, len(fb.ArgsMap))
	for fallbackField, originalField := range fb.ArgsMap {
		if v, ok := input[originalField]; ok {
			mapped[fallbackField] = v
		}
	}
	return mapped
}
