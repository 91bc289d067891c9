package projectfile

import (
	"regexp"
	"strings"
)

const (
	sdkProjectPrefixConstant        = `<Project Sdk="`
	byteOrderMarkConstant           = "\ufeff"
	packageReferencePatternConstant = `(?i)<PackageReference\s+Include="(?P<id>[^"]+)"\s+Version="(?P<version>[^"]+)"\s*/>`
	projectReferencePatternConstant = `(?i)<ProjectReference\s+Include="(?P<path>[^"]+\.(?:cs|fs|vb)proj)"\s*/>`
	packageIdentifierGroupConstant  = "id"
	packageVersionGroupConstant     = "version"
	projectPathGroupConstant        = "path"
)

var (
	packageReferencePattern = regexp.MustCompile(packageReferencePatternConstant)
	projectReferencePattern = regexp.MustCompile(projectReferencePatternConstant)
)

// PackageDeclaration is a package reference as written in a project file.
type PackageDeclaration struct {
	ID         string
	Version    string
	LineNumber int
}

// ProjectDeclaration is a project reference as written in a project file.
type ProjectDeclaration struct {
	Include    string
	LineNumber int
}

// Declarations lists the references declared by one project file in file order.
type Declarations struct {
	SDKStyle          bool
	PackageReferences []PackageDeclaration
	ProjectReferences []ProjectDeclaration
}

// Parse extracts reference declarations from project file text.
// A project is SDK-style when its first non-blank line opens a Project element with an Sdk attribute.
func Parse(content string) Declarations {
	declarations := Declarations{}

	packageIdentifierIndex := packageReferencePattern.SubexpIndex(packageIdentifierGroupConstant)
	packageVersionIndex := packageReferencePattern.SubexpIndex(packageVersionGroupConstant)
	projectPathIndex := projectReferencePattern.SubexpIndex(projectPathGroupConstant)

	firstNonBlankLineSeen := false
	for lineIndex, line := range strings.Split(strings.TrimPrefix(content, byteOrderMarkConstant), "\n") {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}

		if !firstNonBlankLineSeen {
			firstNonBlankLineSeen = true
			declarations.SDKStyle = strings.HasPrefix(trimmedLine, sdkProjectPrefixConstant)
		}

		if packageMatch := packageReferencePattern.FindStringSubmatch(line); packageMatch != nil {
			declarations.PackageReferences = append(declarations.PackageReferences, PackageDeclaration{
				ID:         strings.TrimSpace(packageMatch[packageIdentifierIndex]),
				Version:    strings.TrimSpace(packageMatch[packageVersionIndex]),
				LineNumber: lineIndex + 1,
			})
			continue
		}

		if projectMatch := projectReferencePattern.FindStringSubmatch(line); projectMatch != nil {
			declarations.ProjectReferences = append(declarations.ProjectReferences, ProjectDeclaration{
				Include:    strings.TrimSpace(projectMatch[projectPathIndex]),
				LineNumber: lineIndex + 1,
			})
		}
	}

	return declarations
}
