package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/config"
)

// Config tunes the breaker.
type Config struct {
	// WindowSize is how many recent executions feed the error rate.
	WindowSize int

	// ErrorRateThreshold opens the breaker when exceeded.
	ErrorRateThreshold float64

	// MinSamples is the minimum window occupancy before the breaker
	// can open; a single early failure must not trip it.
	MinSamples int

	// Cooldown is how long the breaker stays open with no further
	// failures before it auto-closes.
	Cooldown time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:         20,
		ErrorRateThreshold: 0.5,
		MinSamples:         5,
		Cooldown:           60 * time.Second,
	}
}

// FromConfig builds a breaker Config from loaded guard settings. Zero
// fields fall back to defaults in New.
func FromConfig(cfg config.BreakerConfig) *Config {
	return &Config{
		WindowSize:         cfg.WindowSize,
		ErrorRateThreshold: cfg.ErrorRateThreshold,
		MinSamples:         cfg.MinSamples,
		Cooldown:           time.Duration(cfg.CooldownSeconds) * time.Second,
	}
}

// Status reports a skill's breaker state.
type Status struct {
	// ErrorRate is the failure fraction over the recent window, in [0,1].
	ErrorRate float64

	// CooldownRemaining is seconds until an open breaker auto-closes;
	// zero when closed.
	CooldownRemaining float64
}

// skillState holds per-skill windowed counters.
type skillState struct {
	results []bool // ring buffer of success flags
	next    int
	filled  int

	open     bool
	openedAt time.Time
}

// Breaker tracks execution outcomes per skill name and opens when the
// recent error rate crosses the threshold. Safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	config *Config
	logger *zap.Logger
	skills map[string]*skillState
	now    func() time.Time
}

// New creates a breaker.
func New(config *Config, logger *zap.Logger) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.ErrorRateThreshold <= 0 {
		config.ErrorRateThreshold = 0.5
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		config: config,
		logger: logger,
		skills: make(map[string]*skillState),
		now:    time.Now,
	}
}

// RecordExecution records one execution outcome for a skill. A failure
// recorded while the breaker is open restarts the cooldown.
func (b *Breaker) RecordExecution(name string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(name)
	st.results[st.next] = success
	st.next = (st.next + 1) % b.config.WindowSize
	if st.filled < b.config.WindowSize {
		st.filled++
	}

	rate := errorRate(st)
	if !success && st.open {
		st.openedAt = b.now()
		return
	}

	if !st.open && st.filled >= b.config.MinSamples && rate > b.config.ErrorRateThreshold {
		st.open = true
		st.openedAt = b.now()
		b.logger.Warn("circuit opened",
			zap.String("skill", name),
			zap.Float64("error_rate", rate),
			zap.Float64("threshold", b.config.ErrorRateThreshold),
		)
	}
}

// IsOpen reports whether the skill's circuit is open, auto-closing it
// when the cooldown has elapsed without further failures.
func (b *Breaker) IsOpen(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(name)
	b.maybeClose(name, st)
	return st.open
}

// GetStatus returns the skill's current error rate and remaining
// cooldown.
func (b *Breaker) GetStatus(name string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(name)
	b.maybeClose(name, st)

	status := Status{ErrorRate: errorRate(st)}
	if st.open {
		remaining := b.config.Cooldown - b.now().Sub(st.openedAt)
		if remaining > 0 {
			status.CooldownRemaining = remaining.Seconds()
		}
	}
	return status
}

// Reset closes the circuit and clears the window for a skill.
func (b *Breaker) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.skills, name)
	b.logger.Info("circuit reset", zap.String("skill", name))
}

func (b *Breaker) state(name string) *skillState {
	st, ok := b.skills[name]
	if !ok {
		st = &skillState{results: make([]bool, b.config.WindowSize)}
		b.skills[name] = st
	}
	return st
}

// maybeClose auto-closes an open circuit whose cooldown elapsed. The
// failure window is cleared so stale failures cannot re-open it on the
// next record.
func (b *Breaker) maybeClose(name string, st *skillState) {
	if !st.open {
		return
	}
	if b.now().Sub(st.openedAt) >= b.config.Cooldown {
		st.open = false
		st.next = 0
		st.filled = 0
		b.logger.Info("circuit closed after cooldown", zap.String("skill", name))
	}
}

func errorRate(st *skillState) float64 {
	if st.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < st.filled; i++ {
		if !st.results[i] {
			failures++
		}
	}
	return float64(failures) / float64(st.filled)
}
