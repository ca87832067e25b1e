package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadManifest parses a single skill manifest from a TOML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadManifestDir loads every *.toml manifest in a directory, keyed by
// skill name. A missing directory yields an empty map; a malformed
// manifest fails the whole load so configuration mistakes surface at
// startup rather than at dispatch time.
func LoadManifestDir(dir string) (map[string]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	manifests := make(map[string]*Manifest)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		m, err := LoadManifest(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := manifests[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate manifest for %s", ErrInvalidManifest, m.Name)
		}
		manifests[m.Name] = m
	}
	return manifests, nil
}
