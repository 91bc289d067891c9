package graph

import (
	"fmt"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/packages"
)

const (
	unknownDependenciesTemplateConstant = "%w: %s %s"
	unsupportedNodeTemplateConstant     = "%w: %T"
)

// Oracle answers one-hop dependency queries over the graph.
type Oracle struct{}

// DependsOn returns the one-hop dependencies of a *Project or *packages.Metadata.
func (oracle Oracle) DependsOn(node any) ([]analysis.Identifier, error) {
	switch typedNode := node.(type) {
	case *Project:
		return oracle.ProjectDependencies(typedNode), nil
	case *packages.Metadata:
		return oracle.PackageDependencies(typedNode)
	default:
		return nil, fmt.Errorf(unsupportedNodeTemplateConstant, ErrUnsupportedNode, node)
	}
}

// ProjectDependencies returns the declared project references followed by the declared package references.
func (oracle Oracle) ProjectDependencies(project *Project) []analysis.Identifier {
	identifiers := make([]analysis.Identifier, 0, len(project.ProjectReferences)+len(project.PackageReferences))
	for _, reference := range project.ProjectReferences {
		identifiers = append(identifiers, reference.Identifier())
	}
	for _, reference := range project.PackageReferences {
		identifiers = append(identifiers, reference.Identifier())
	}
	return identifiers
}

// PackageDependencies returns the declared dependencies of a package.
// Metadata without dependency data yields ErrDependencyDataUnavailable.
func (oracle Oracle) PackageDependencies(metadata *packages.Metadata) ([]analysis.Identifier, error) {
	if metadata == nil || !metadata.DependenciesKnown {
		packageID, packageVersion := "", ""
		if metadata != nil {
			packageID, packageVersion = metadata.ID, metadata.Version
		}
		return nil, fmt.Errorf(unknownDependenciesTemplateConstant, ErrDependencyDataUnavailable, packageID, packageVersion)
	}

	identifiers := make([]analysis.Identifier, 0, len(metadata.Dependencies))
	for _, dependencyID := range metadata.Dependencies {
		identifiers = append(identifiers, analysis.PackageIdentifier(dependencyID))
	}
	return identifiers, nil
}
