// Package registry tracks registered skills and their manifests.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Input is the argument map passed to a skill execution.
type Input map[string]any

// Output is the result of a skill execution. Token and cost counters
// are optional; zero values mean "not reported".
type Output struct {
	Value   any     `json:"value"`
	Tokens  int     `json:"tokens,omitempty"`
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// Skill is an executable capability. Implementations must be safe for
// concurrent Execute calls.
type Skill interface {
	Name() string
	Execute(ctx context.Context, input Input) (*Output, error)
}

// Entry pairs a skill with its manifest.
type Entry struct {
	Skill    Skill
	Manifest *Manifest
}

// Registry is the in-process production skill registry. Promoted skills
// are registered here; the runtime guard and the fallback dispatcher
// resolve targets through it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a skill with its manifest. Registering a name twice is
// an error; use Replace for version bumps.
func (r *Registry) Register(skill Skill, manifest *Manifest) error {
	if skill == nil {
		return fmt.Errorf("skill is required")
	}
	if manifest == nil {
		manifest = &Manifest{Name: skill.Name()}
	}
	if manifest.Name == "" {
		manifest.Name = skill.Name()
	}
	if manifest.Name != skill.Name() {
		return fmt.Errorf("%w: manifest name %q does not match skill name %q", ErrInvalidManifest, manifest.Name, skill.Name())
	}
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[manifest.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, manifest.Name)
	}
	r.entries[manifest.Name] = &Entry{Skill: skill, Manifest: manifest}
	return nil
}

// Replace registers or overwrites a skill entry. Used when governance
// promotes a new version of an existing skill.
func (r *Registry) Replace(skill Skill, manifest *Manifest) error {
	if skill == nil {
		return fmt.Errorf("skill is required")
	}
	if manifest == nil {
		manifest = &Manifest{Name: skill.Name()}
	}
	if manifest.Name == "" {
		manifest.Name = skill.Name()
	}
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[manifest.Name] = &Entry{Skill: skill, Manifest: manifest}
	return nil
}

// Get resolves a skill entry by name.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return entry, nil
}

// List returns registered skill names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
