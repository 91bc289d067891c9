package analysis

import (
	"path/filepath"
	"strings"
)

// IdentifierKind separates the identifier spaces of projects and packages.
type IdentifierKind string

// Identifier kinds.
const (
	ProjectIdentifierKind IdentifierKind = "project"
	PackageIdentifierKind IdentifierKind = "package"
)

// Identifier names the target of a reference.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ProjectIdentifier identifies a project by its cleaned file path.
func ProjectIdentifier(projectPath string) Identifier {
	return Identifier{Kind: ProjectIdentifierKind, Value: filepath.Clean(projectPath)}
}

// PackageIdentifier identifies a package by its case-insensitive id.
func PackageIdentifier(packageID string) Identifier {
	return Identifier{Kind: PackageIdentifierKind, Value: strings.ToLower(strings.TrimSpace(packageID))}
}

func (identifier Identifier) String() string {
	return string(identifier.Kind) + ":" + identifier.Value
}
