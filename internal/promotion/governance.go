package promotion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/registry"
)

// ManifestGovernance is the in-repo Governance default: it promotes a
// candidate by resolving its production version from the loaded
// manifest set. Deployments with a real governance pipeline inject
// their own implementation instead.
type ManifestGovernance struct {
	manifests map[string]*registry.Manifest
	logger    *zap.Logger
}

// NewManifestGovernance creates a manifest-backed governance.
func NewManifestGovernance(manifests map[string]*registry.Manifest, logger *zap.Logger) *ManifestGovernance {
	if manifests == nil {
		manifests = map[string]*registry.Manifest{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestGovernance{manifests: manifests, logger: logger}
}

// Promote resolves the candidate's version from its manifest. A skill
// with no manifest cannot be promoted.
func (g *ManifestGovernance) Promote(_ context.Context, skill string) (string, error) {
	m, ok := g.manifests[skill]
	if !ok {
		return "", fmt.Errorf("no manifest for skill %s", skill)
	}
	version := m.Version
	if version == "" {
		version = "1.0.0"
	}
	g.logger.Info("promoting skill out of quarantine",
		zap.String("skill", skill),
		zap.String("version", version),
	)
	return version, nil
}
