package registry

import (
	"errors"
	"fmt"
	"regexp"
)

// Errors for registry operations.
var (
	ErrSkillNotFound     = errors.New("skill not found")
	ErrInvalidManifest   = errors.New("invalid skill manifest")
	ErrAlreadyRegistered = errors.New("skill already registered")
)

// namePattern validates skill names. Allows alphanumeric, hyphens,
// underscores, and dots.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// RetryPolicy bounds execution attempts for a skill.
type RetryPolicy struct {
	Attempts int `toml:"attempts" json:"attempts"`
}

// FallbackConfig names an alternate skill and how to map the original
// input onto its expected shape. An empty ArgsMap passes the input
// through unchanged. On lists the error codes this fallback targets;
// an empty list means the fallback is only reachable via the generic
// declared-order scan.
type FallbackConfig struct {
	Skill   string            `toml:"skill" json:"skill"`
	ArgsMap map[string]string `toml:"args_map" json:"args_map,omitempty"`
	On      []string          `toml:"on" json:"on,omitempty"`
}

// Visibility restricts which intents may invoke a skill. An empty
// intent list means unrestricted.
type Visibility struct {
	Intents []string `toml:"intents" json:"intents,omitempty"`
}

// Permits reports whether the given intent may invoke the skill.
func (v Visibility) Permits(intent string) bool {
	if len(v.Intents) == 0 {
		return true
	}
	for _, allowed := range v.Intents {
		if allowed == intent {
			return true
		}
	}
	return false
}

// Manifest is the static descriptor for a registered skill.
type Manifest struct {
	Name       string           `toml:"name" json:"name"`
	Version    string           `toml:"version" json:"version"`
	Model      string           `toml:"model" json:"model,omitempty"`
	Risk       string           `toml:"risk" json:"risk,omitempty"`
	Retries    RetryPolicy      `toml:"retries" json:"retries"`
	Fallbacks  []FallbackConfig `toml:"fallbacks" json:"fallbacks,omitempty"`
	Visibility Visibility       `toml:"visibility" json:"visibility"`
}

// Validate checks manifest invariants and applies the minimum retry
// bound.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: name %q must be alphanumeric with hyphens/underscores", ErrInvalidManifest, m.Name)
	}
	if m.Retries.Attempts < 1 {
		m.Retries.Attempts = 1
	}
	for i, fb := range m.Fallbacks {
		if fb.Skill == "" {
			return fmt.Errorf("%w: fallbacks[%d] is missing a skill name", ErrInvalidManifest, i)
		}
	}
	return nil
}

// FallbackFor returns the declared fallback config for a skill name,
// or a bare config when the skill is not explicitly configured.
func (m *Manifest) FallbackFor(name string) FallbackConfig {
	for _, fb := range m.Fallbacks {
		if fb.Skill == name {
			return fb
		}
	}
	return FallbackConfig{Skill: name}
}
