package graph

import (
	"errors"
	"fmt"

	"github.com/temirov/refprune/internal/analysis"
)

const danglingReferenceTemplateConstant = "project %s references %s (resolved to %s), which is not part of the solution"

var (
	// ErrDanglingReference indicates a project reference whose target is not a solution project.
	ErrDanglingReference = errors.New("dangling project reference")
	// ErrDependencyDataUnavailable indicates that a package's dependencies could not be determined.
	ErrDependencyDataUnavailable = analysis.ErrDependencyDataUnavailable
	// ErrUnsupportedNode indicates a dependency query for a value that is neither a project nor package metadata.
	ErrUnsupportedNode = errors.New("unsupported dependency graph node")
)

// DanglingReferenceError describes a project reference that does not resolve to a solution project.
type DanglingReferenceError struct {
	ProjectPath  string
	Include      string
	ResolvedPath string
}

func (danglingError *DanglingReferenceError) Error() string {
	return fmt.Sprintf(danglingReferenceTemplateConstant, danglingError.ProjectPath, danglingError.Include, danglingError.ResolvedPath)
}

// Is reports whether target is ErrDanglingReference.
func (danglingError *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}
