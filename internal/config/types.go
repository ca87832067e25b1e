package config

import (
	"fmt"
	"time"
)

// Config is the full skillgate configuration tree.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Promotion     PromotionConfig     `koanf:"promotion"`
	Risk          map[string]string   `koanf:"risk"`
	Guard         GuardConfig         `koanf:"guard"`
	Tests         TestGateConfig      `koanf:"tests"`
	Evidence      EvidenceConfig      `koanf:"evidence"`
	State         StateConfig         `koanf:"state"`
	Manifests     ManifestConfig      `koanf:"manifests"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// ObservabilityConfig configures OTEL export and optional NATS publishing.
type ObservabilityConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	NATSURL      string `koanf:"nats_url"`
}

// PromotionConfig holds the promotion policy gates.
type PromotionConfig struct {
	ShadowWinMin          float64  `koanf:"shadow_win_min"`
	MinShadowTrials       int      `koanf:"min_shadow_trials"`
	MaxToolsPromotePerDay int      `koanf:"max_tools_promote_per_day"`
	RequireTestsGreen     bool     `koanf:"require_tests_green"`
	RiskAllow             []string `koanf:"risk_allow"`
	EnableRepairHandoff   bool     `koanf:"enable_repair_handoff"`
}

// GuardConfig holds runtime guard backoff and breaker settings.
type GuardConfig struct {
	BaseBackoffMS int           `koanf:"base_backoff_ms"`
	JitterMS      int           `koanf:"jitter_ms"`
	Breaker       BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the per-skill circuit breaker.
type BreakerConfig struct {
	WindowSize         int     `koanf:"window_size"`
	ErrorRateThreshold float64 `koanf:"error_rate_threshold"`
	MinSamples         int     `koanf:"min_samples"`
	CooldownSeconds    int     `koanf:"cooldown_seconds"`
}

// TestGateConfig configures the external fast test subset invocation.
type TestGateConfig struct {
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout"`
	Skip    bool          `koanf:"skip"`
}

// EvidenceConfig configures evidence bundle persistence.
type EvidenceConfig struct {
	Dir         string `koanf:"dir"`
	NATSSubject string `koanf:"nats_subject"`
}

// StateConfig configures promotion state persistence.
type StateConfig struct {
	Path string `koanf:"path"`
}

// ManifestConfig configures skill manifest loading.
type ManifestConfig struct {
	Dir string `koanf:"dir"`
}

// Policy is the promotion policy consumed by the gate evaluator: the
// gate thresholds plus the per-skill risk table.
type Policy struct {
	Promotion PromotionConfig
	Risk      map[string]string
}

// RiskOf returns the risk label for a skill, defaulting to "medium"
// when the skill has no entry in the risk table.
func (p *Policy) RiskOf(skill string) string {
	if label, ok := p.Risk[skill]; ok && label != "" {
		return label
	}
	return "medium"
}

// RiskAllowed reports whether the label is in the policy allow set.
func (p *Policy) RiskAllowed(label string) bool {
	for _, allowed := range p.Promotion.RiskAllow {
		if allowed == label {
			return true
		}
	}
	return false
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Promotion.MinShadowTrials < 0 {
		return fmt.Errorf("promotion.min_shadow_trials must be >= 0, got %d", c.Promotion.MinShadowTrials)
	}
	if c.Promotion.MaxToolsPromotePerDay < 0 {
		return fmt.Errorf("promotion.max_tools_promote_per_day must be >= 0, got %d", c.Promotion.MaxToolsPromotePerDay)
	}
	if c.Guard.BaseBackoffMS < 0 || c.Guard.JitterMS < 0 {
		return fmt.Errorf("guard backoff values must be >= 0")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
