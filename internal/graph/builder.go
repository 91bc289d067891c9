package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/filesystem"
	"github.com/temirov/refprune/internal/packages"
	"github.com/temirov/refprune/internal/projectfile"
	"github.com/temirov/refprune/internal/solution"
)

const (
	resolverMissingMessageConstant           = "package resolver must be provided"
	projectReadErrorTemplateConstant         = "unable to read project %s: %w"
	packageResolutionErrorTemplateConstant   = "unable to resolve package %s %s for project %s: %w"
	duplicateProjectEntryMessageConstant     = "duplicate solution entry ignored"
	duplicatePackageMessageConstant          = "duplicate package reference collapsed"
	duplicateProjectReferenceMessageConstant = "duplicate project reference collapsed"
	projectLoadedMessageConstant             = "project loaded"
	logFieldProjectPathConstant              = "project_path"
	logFieldProjectNameConstant              = "project_name"
	logFieldPackageIDConstant                = "package_id"
	logFieldIncludeConstant                  = "include"
	logFieldLineNumberConstant               = "line_number"
	logFieldSDKStyleConstant                 = "sdk_style"
	logFieldPackageCountConstant             = "package_reference_count"
	logFieldProjectReferenceCountConstant    = "project_reference_count"
)

// DeclarationParser extracts reference declarations from project file text.
type DeclarationParser func(content string) projectfile.Declarations

// PackageResolver resolves package metadata.
type PackageResolver interface {
	Resolve(resolveContext context.Context, packageID string, version string) (*packages.Metadata, error)
}

// BuilderDependencies supplies collaborators for Builder.
type BuilderDependencies struct {
	Logger     *zap.Logger
	FileSystem filesystem.FileSystem
	Parser     DeclarationParser
	Resolver   PackageResolver
}

// Builder constructs the reference graph of a solution.
type Builder struct {
	logger     *zap.Logger
	fileSystem filesystem.FileSystem
	parser     DeclarationParser
	resolver   PackageResolver
}

// NewBuilder validates dependencies and constructs a Builder.
func NewBuilder(dependencies BuilderDependencies) (*Builder, error) {
	if dependencies.Resolver == nil {
		return nil, errors.New(resolverMissingMessageConstant)
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := dependencies.Parser
	if parser == nil {
		parser = projectfile.Parse
	}

	return &Builder{
		logger:     logger,
		fileSystem: filesystem.Resolve(dependencies.FileSystem),
		parser:     parser,
		resolver:   dependencies.Resolver,
	}, nil
}

// Build creates a project for every entry, then reads each project file in solution order.
// A dangling project reference or an unresolvable package aborts the build.
func (builder *Builder) Build(buildContext context.Context, entries []solution.Entry) (*Graph, error) {
	graph := newGraph()
	for _, entry := range entries {
		project := &Project{Name: entry.Name, Path: filepath.Clean(entry.Path)}
		if !graph.add(project) {
			builder.logger.Warn(duplicateProjectEntryMessageConstant, zap.String(logFieldProjectPathConstant, project.Path))
		}
	}

	for _, project := range graph.Projects {
		if contextError := buildContext.Err(); contextError != nil {
			return nil, contextError
		}
		if loadError := builder.loadProject(buildContext, graph, project); loadError != nil {
			return nil, loadError
		}
	}

	return graph, nil
}

func (builder *Builder) loadProject(buildContext context.Context, graph *Graph, project *Project) error {
	contents, readError := builder.fileSystem.ReadFile(project.Path)
	if readError != nil {
		return fmt.Errorf(projectReadErrorTemplateConstant, project.Path, readError)
	}

	declarations := builder.parser(string(contents))
	project.SDKStyle = declarations.SDKStyle

	projectDirectory := filepath.Dir(project.Path)
	for _, declaration := range declarations.ProjectReferences {
		resolvedPath := solution.ResolveDeclaredPath(projectDirectory, declaration.Include)
		target, found := graph.Project(resolvedPath)
		if !found {
			return &DanglingReferenceError{
				ProjectPath:  project.Path,
				Include:      declaration.Include,
				ResolvedPath: resolvedPath,
			}
		}
		if existingReference := findProjectReference(project, target); existingReference != nil {
			existingReference.addAlias(declaration.Include)
			builder.logger.Warn(duplicateProjectReferenceMessageConstant,
				zap.String(logFieldProjectPathConstant, project.Path),
				zap.String(logFieldIncludeConstant, declaration.Include),
				zap.Int(logFieldLineNumberConstant, declaration.LineNumber),
			)
			continue
		}
		project.ProjectReferences = append(project.ProjectReferences, &ProjectReference{Target: target, Include: declaration.Include})
	}

	for _, declaration := range declarations.PackageReferences {
		if hasPackageReference(project, declaration.ID) {
			builder.logger.Warn(duplicatePackageMessageConstant,
				zap.String(logFieldProjectPathConstant, project.Path),
				zap.String(logFieldPackageIDConstant, declaration.ID),
				zap.Int(logFieldLineNumberConstant, declaration.LineNumber),
			)
			continue
		}

		metadata, resolveError := builder.resolver.Resolve(buildContext, declaration.ID, declaration.Version)
		if resolveError != nil {
			return fmt.Errorf(packageResolutionErrorTemplateConstant, declaration.ID, declaration.Version, project.Path, resolveError)
		}
		project.PackageReferences = append(project.PackageReferences, &PackageReference{
			ID:       declaration.ID,
			Version:  declaration.Version,
			Metadata: metadata,
		})
	}

	builder.logger.Debug(projectLoadedMessageConstant,
		zap.String(logFieldProjectNameConstant, project.Name),
		zap.String(logFieldProjectPathConstant, project.Path),
		zap.Bool(logFieldSDKStyleConstant, project.SDKStyle),
		zap.Int(logFieldPackageCountConstant, len(project.PackageReferences)),
		zap.Int(logFieldProjectReferenceCountConstant, len(project.ProjectReferences)),
	)
	return nil
}

func findProjectReference(project *Project, target *Project) *ProjectReference {
	for _, reference := range project.ProjectReferences {
		if reference.Target == target {
			return reference
		}
	}
	return nil
}

func hasPackageReference(project *Project, packageID string) bool {
	key := packages.CacheKey(packageID)
	for _, reference := range project.PackageReferences {
		if packages.CacheKey(reference.ID) == key {
			return true
		}
	}
	return false
}
