package promotion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store persists promotion state as a JSON document at a fixed path.
//
// Load degrades to an empty state instead of failing: the control plane
// must never block on a corrupted statistics file. That trades strict
// accuracy for availability, so degraded loads are logged loudly.
//
// All load-mutate-save cycles run under one mutex, which serializes
// concurrent promotion evaluations and preserves the daily quota
// invariant.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewStore creates a store at the given path. The parent directory is
// created on first save if absent.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load reads the state file. Missing or corrupt files yield an empty
// state, never an error.
func (s *Store) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes the full state back atomically. Safe to call repeatedly.
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

// Update runs fn against the current state under the store lock and
// persists the result when fn succeeds. This is the only way promotion
// decisions touch shared state, so load-mutate-save is atomic with
// respect to other callers.
func (s *Store) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if err := fn(state); err != nil {
		return err
	}
	return s.save(state)
}

// Record adds one shadow-trial delta for a candidate and persists.
func (s *Store) Record(name string, delta float64) error {
	return s.Update(func(state *State) error {
		state.Record(name, delta)
		return nil
	})
}

// Snapshot returns a deep copy of the current state for read-only use.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	copied := &State{
		Stats:         make(map[string]*CandidateStats, len(state.Stats)),
		TodayPromoted: state.TodayPromoted,
		LastReset:     state.LastReset,
	}
	for name, st := range state.Stats {
		c := *st
		copied.Stats[name] = &c
	}
	return copied
}

func (s *Store) load() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read promotion state, starting empty",
				zap.String("path", s.path),
				zap.Error(err),
			)
		}
		return NewState()
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("promotion state unreadable, starting empty",
			zap.String("path", s.path),
			zap.Error(fmt.Errorf("%w: %v", ErrStateCorrupted, err)),
		)
		return NewState()
	}
	if state.Stats == nil {
		state.Stats = make(map[string]*CandidateStats)
	}
	return &state
}

func (s *Store) save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal promotion state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write atomically
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write promotion state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename promotion state: %w", err)
	}
	return nil
}
