// Package config provides configuration and policy loading for skillgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "skillgate", "config.yaml"), nil
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PROMOTION_SHADOW_WIN_MIN, SERVER_PORT, ...)
//  2. YAML config file (~/.config/skillgate/config.yaml)
//  3. Hardcoded defaults
//
// Environment variables use underscore separator and are uppercased; the
// transformer splits on the first underscore into section.field_name:
//
//	SERVER_PORT                 -> server.port
//	PROMOTION_SHADOW_WIN_MIN    -> promotion.shadow_win_min
//	GUARD_BASE_BACKOFF_MS       -> guard.base_backoff_ms
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	// require_tests_green defaults to true, so the zero value cannot be
	// used to detect an omitted key.
	if !k.Exists("promotion.require_tests_green") {
		cfg.Promotion.RequireTestsGreen = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadPolicy loads the promotion policy from the config source. It never
// fails: a missing or unparsable source logs a warning and falls back to
// the built-in default policy. Availability of the decision path wins over
// strict config accuracy here.
func LoadPolicy(configPath string, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		logger.Warn("policy source unavailable, using built-in defaults",
			zap.String("path", configPath),
			zap.Error(err),
		)
		return DefaultPolicy()
	}

	return &Policy{Promotion: cfg.Promotion, Risk: cfg.Risk}
}

// DefaultPolicy returns the hard-coded fallback promotion policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Promotion: defaultPromotion(),
		Risk:      map[string]string{},
	}
}

func defaultPromotion() PromotionConfig {
	return PromotionConfig{
		ShadowWinMin:          0.02,
		MinShadowTrials:       20,
		MaxToolsPromotePerDay: 2,
		RequireTestsGreen:     true,
		RiskAllow:             []string{"low", "medium"},
	}
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "skillgate"
	}

	def := defaultPromotion()
	if cfg.Promotion.ShadowWinMin == 0 {
		cfg.Promotion.ShadowWinMin = def.ShadowWinMin
	}
	if cfg.Promotion.MinShadowTrials == 0 {
		cfg.Promotion.MinShadowTrials = def.MinShadowTrials
	}
	if cfg.Promotion.MaxToolsPromotePerDay == 0 {
		cfg.Promotion.MaxToolsPromotePerDay = def.MaxToolsPromotePerDay
	}
	if cfg.Promotion.RiskAllow == nil {
		cfg.Promotion.RiskAllow = def.RiskAllow
	}
	if cfg.Risk == nil {
		cfg.Risk = map[string]string{}
	}

	if cfg.Guard.BaseBackoffMS == 0 {
		cfg.Guard.BaseBackoffMS = 300
	}
	if cfg.Guard.JitterMS == 0 {
		cfg.Guard.JitterMS = 150
	}
	if cfg.Guard.Breaker.WindowSize == 0 {
		cfg.Guard.Breaker.WindowSize = 20
	}
	if cfg.Guard.Breaker.ErrorRateThreshold == 0 {
		cfg.Guard.Breaker.ErrorRateThreshold = 0.5
	}
	if cfg.Guard.Breaker.MinSamples == 0 {
		cfg.Guard.Breaker.MinSamples = 5
	}
	if cfg.Guard.Breaker.CooldownSeconds == 0 {
		cfg.Guard.Breaker.CooldownSeconds = 60
	}

	if cfg.Tests.Command == "" {
		cfg.Tests.Command = "go"
	}
	if cfg.Tests.Args == nil {
		cfg.Tests.Args = []string{"test", "-short", "./..."}
	}
	if cfg.Tests.Timeout == 0 {
		cfg.Tests.Timeout = 120 * time.Second
	}

	if cfg.State.Path == "" {
		cfg.State.Path = stateDefault("promotion_state.json")
	}
	if cfg.Evidence.Dir == "" {
		cfg.Evidence.Dir = stateDefault("evidence")
	}
	if cfg.Evidence.NATSSubject == "" {
		cfg.Evidence.NATSSubject = "skillgate.evidence"
	}
	if cfg.Manifests.Dir == "" {
		cfg.Manifests.Dir = stateDefault("manifests")
	}
}

// stateDefault builds a path under the skillgate config directory,
// falling back to the working directory when home is unavailable.
func stateDefault(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "skillgate", name)
}
