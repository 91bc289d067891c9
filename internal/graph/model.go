package graph

import (
	"path/filepath"
	"strings"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/packages"
)

// Project is one member of a solution.
type Project struct {
	Name              string
	Path              string
	SDKStyle          bool
	PackageReferences []*PackageReference
	ProjectReferences []*ProjectReference
}

// PackageReference is a package dependency declared by a project.
type PackageReference struct {
	ID       string
	Version  string
	Metadata *packages.Metadata
}

// ProjectReference is a dependency on another project of the solution.
type ProjectReference struct {
	Target *Project
	// Include is the path exactly as written in the first declaration.
	Include string
	// Aliases holds further spellings of the same target declared by the project, such as forward-slash variants.
	Aliases []string
}

// FileName returns the base name of the project file.
func (project *Project) FileName() string {
	return filepath.Base(project.Path)
}

// Identifier identifies the project as a reference target.
func (project *Project) Identifier() analysis.Identifier {
	return analysis.ProjectIdentifier(project.Path)
}

// RemoveProjectReference drops the reference to target and reports whether one existed.
func (project *Project) RemoveProjectReference(target *Project) bool {
	for referenceIndex, reference := range project.ProjectReferences {
		if reference.Target == target {
			project.ProjectReferences = append(project.ProjectReferences[:referenceIndex], project.ProjectReferences[referenceIndex+1:]...)
			return true
		}
	}
	return false
}

// RemovePackageReference drops the reference to packageID and reports whether one existed.
func (project *Project) RemovePackageReference(packageID string) bool {
	for referenceIndex, reference := range project.PackageReferences {
		if strings.EqualFold(reference.ID, packageID) {
			project.PackageReferences = append(project.PackageReferences[:referenceIndex], project.PackageReferences[referenceIndex+1:]...)
			return true
		}
	}
	return false
}

// Identifier identifies the referenced package.
func (reference *PackageReference) Identifier() analysis.Identifier {
	return analysis.PackageIdentifier(reference.ID)
}

// Includes returns every spelling under which the reference is declared, first declaration first.
func (reference *ProjectReference) Includes() []string {
	return append([]string{reference.Include}, reference.Aliases...)
}

func (reference *ProjectReference) addAlias(include string) {
	for _, declaredInclude := range reference.Includes() {
		if declaredInclude == include {
			return
		}
	}
	reference.Aliases = append(reference.Aliases, include)
}

// Identifier identifies the referenced project.
func (reference *ProjectReference) Identifier() analysis.Identifier {
	return reference.Target.Identifier()
}

// Graph holds the projects of a solution in solution order.
type Graph struct {
	Projects []*Project
	byPath   map[string]*Project
}

func newGraph() *Graph {
	return &Graph{byPath: make(map[string]*Project)}
}

func (graph *Graph) add(project *Project) bool {
	key := filepath.Clean(project.Path)
	if _, exists := graph.byPath[key]; exists {
		return false
	}
	graph.byPath[key] = project
	graph.Projects = append(graph.Projects, project)
	return true
}

// Project returns the project stored at projectPath.
func (graph *Graph) Project(projectPath string) (*Project, bool) {
	project, found := graph.byPath[filepath.Clean(projectPath)]
	return project, found
}
