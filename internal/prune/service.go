package prune

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/feeds"
	"github.com/temirov/refprune/internal/filesystem"
	"github.com/temirov/refprune/internal/graph"
	"github.com/temirov/refprune/internal/nuget"
	"github.com/temirov/refprune/internal/packages"
	"github.com/temirov/refprune/internal/solution"
	pathutils "github.com/temirov/refprune/internal/utils/path"
)

const (
	reportFilePermissionsConstant          = 0o644
	solutionLoadErrorTemplateConstant      = "unable to load solution: %w"
	environmentErrorTemplateConstant       = "unable to read environment file: %w"
	feedConfigurationErrorTemplateConstant = "unable to load feed configuration: %w"
	feedClientErrorTemplateConstant        = "unable to create client for package source %q: %w"
	graphBuildErrorTemplateConstant        = "unable to build reference graph: %w"
	analysisErrorTemplateConstant          = "unable to analyze %s references of %s: %w"
	pruneProjectErrorTemplateConstant      = "unable to prune %s: %w"
	reportEncodeErrorTemplateConstant      = "unable to encode report: %w"
	reportWriteErrorTemplateConstant       = "unable to write report %s: %w"
	solutionLoadedMessageConstant          = "solution loaded"
	referenceLineMissingMessageConstant    = "redundant reference has no removable declaration line"
	undeterminedReferencesMessageConstant  = "references kept because sibling dependency data is unavailable"
	pruneCompletedMessageConstant          = "pruning completed"
	reportWrittenMessageConstant           = "report written"
	logFieldSolutionPathConstant           = "solution"
	logFieldProjectCountConstant           = "project_count"
	logFieldProjectPathConstant            = "project_path"
	logFieldReferenceConstant              = "reference"
	logFieldCoveredByConstant              = "covered_by"
	logFieldRemovalCountConstant           = "removal_count"
	logFieldUndeterminedCountConstant      = "undetermined_count"
	logFieldPackageLookupsConstant         = "package_lookups"
	logFieldDryRunConstant                 = "dry_run"
	logFieldReportPathConstant             = "report_path"
)

// Options configures a pruning run.
type Options struct {
	SolutionPath        string
	DryRun              bool
	FeedConfiguration   string
	ReportPath          string
	UnknownDependencies analysis.UnknownPolicy
	RequestTimeout      time.Duration
	DocumentCacheSize   int
	Credentials         map[string]feeds.CredentialOverride
}

// Removal records one pruned reference.
type Removal struct {
	ProjectPath     string        `yaml:"project_path"`
	ProjectFileName string        `yaml:"project_file"`
	Kind            ReferenceKind `yaml:"kind"`
	Identifier      string        `yaml:"identifier"`
	Include         string        `yaml:"include"`
	CoveredBy       string        `yaml:"covered_by"`
	LinesRemoved    int           `yaml:"lines_removed"`
}

// Result summarizes a pruning run.
type Result struct {
	SolutionPath           string    `yaml:"solution"`
	DryRun                 bool      `yaml:"dry_run"`
	Removals               []Removal `yaml:"removals"`
	UndeterminedReferences int       `yaml:"undetermined_references"`
	PackageLookups         int       `yaml:"package_lookups"`
}

// ServiceDependencies supplies collaborators for Service.
type ServiceDependencies struct {
	Logger                *zap.Logger
	FileSystem            filesystem.FileSystem
	Reporter              Reporter
	EnvironmentLookup     feeds.EnvironmentLookup
	EnvironmentFileReader feeds.EnvironmentFileReader
	HTTPClient            *http.Client
	PathResolver          *pathutils.Resolver
}

// Service runs the load, analyze, and prune pipeline for one solution.
type Service struct {
	logger                *zap.Logger
	fileSystem            filesystem.FileSystem
	reporter              Reporter
	environmentLookup     feeds.EnvironmentLookup
	environmentFileReader feeds.EnvironmentFileReader
	httpClient            *http.Client
	pathResolver          *pathutils.Resolver
}

// NewService constructs a Service, defaulting unset collaborators.
func NewService(dependencies ServiceDependencies) *Service {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reporter := dependencies.Reporter
	if reporter == nil {
		reporter = NewWriterReporter(nil)
	}

	pathResolver := dependencies.PathResolver
	if pathResolver == nil {
		pathResolver = pathutils.NewResolver()
	}

	return &Service{
		logger:                logger,
		fileSystem:            filesystem.Resolve(dependencies.FileSystem),
		reporter:              reporter,
		environmentLookup:     dependencies.EnvironmentLookup,
		environmentFileReader: dependencies.EnvironmentFileReader,
		httpClient:            dependencies.HTTPClient,
		pathResolver:          pathResolver,
	}
}

// Execute prunes redundant references from every project of the solution.
// Failures while building the graph leave all files untouched. A failure while pruning a project returns the
// removals already committed for earlier projects together with the error.
func (service *Service) Execute(executionContext context.Context, options Options) (Result, error) {
	solutionPath := service.pathResolver.Resolve("", options.SolutionPath)
	loadedSolution, loadError := solution.Load(service.fileSystem, solutionPath)
	if loadError != nil {
		return Result{}, fmt.Errorf(solutionLoadErrorTemplateConstant, loadError)
	}
	service.logger.Info(solutionLoadedMessageConstant,
		zap.String(logFieldSolutionPathConstant, loadedSolution.Path),
		zap.Int(logFieldProjectCountConstant, len(loadedSolution.Entries)),
	)

	policy := options.UnknownDependencies
	if len(policy) == 0 {
		policy = analysis.KeepUnknownPolicy
	}

	resolver, resolverError := service.buildResolver(executionContext, loadedSolution, options)
	if resolverError != nil {
		return Result{}, resolverError
	}

	builder, builderError := graph.NewBuilder(graph.BuilderDependencies{
		Logger:     service.logger,
		FileSystem: service.fileSystem,
		Resolver:   resolver,
	})
	if builderError != nil {
		return Result{}, builderError
	}

	referenceGraph, buildError := builder.Build(executionContext, loadedSolution.Entries)
	if buildError != nil {
		return Result{}, fmt.Errorf(graphBuildErrorTemplateConstant, buildError)
	}

	result := Result{SolutionPath: loadedSolution.Path, DryRun: options.DryRun, Removals: []Removal{}}
	pruner := NewPruner(service.logger, service.fileSystem, options.DryRun)

	for _, project := range referenceGraph.Projects {
		if contextError := executionContext.Err(); contextError != nil {
			return result, contextError
		}
		pruneError := service.pruneProject(project, pruner, policy, &result)
		if pruneError != nil {
			result.PackageLookups = resolver.Lookups()
			return result, fmt.Errorf(pruneProjectErrorTemplateConstant, project.Path, pruneError)
		}
	}
	result.PackageLookups = resolver.Lookups()

	if result.UndeterminedReferences > 0 {
		service.logger.Warn(undeterminedReferencesMessageConstant, zap.Int(logFieldUndeterminedCountConstant, result.UndeterminedReferences))
	}
	service.logger.Info(pruneCompletedMessageConstant,
		zap.String(logFieldSolutionPathConstant, result.SolutionPath),
		zap.Int(logFieldRemovalCountConstant, len(result.Removals)),
		zap.Int(logFieldPackageLookupsConstant, result.PackageLookups),
		zap.Bool(logFieldDryRunConstant, result.DryRun),
	)

	if reportError := service.writeReport(options.ReportPath, result); reportError != nil {
		return result, reportError
	}

	return result, nil
}

func (service *Service) buildResolver(executionContext context.Context, loadedSolution solution.Solution, options Options) (*packages.Resolver, error) {
	environmentLookup, environmentError := feeds.LayeredEnvironmentLookup(service.environmentLookup, service.environmentFileReader, loadedSolution.Directory)
	if environmentError != nil {
		return nil, fmt.Errorf(environmentErrorTemplateConstant, environmentError)
	}

	loader := feeds.NewLoader(feeds.LoaderDependencies{
		Logger:            service.logger,
		FileSystem:        service.fileSystem,
		EnvironmentLookup: environmentLookup,
	})
	configurationPath := feeds.ConfigurationPath(loadedSolution.Directory, service.pathResolver.Expand(options.FeedConfiguration))
	sources, sourcesError := loader.Load(executionContext, configurationPath, options.Credentials)
	if sourcesError != nil {
		return nil, fmt.Errorf(feedConfigurationErrorTemplateConstant, sourcesError)
	}

	clientOptions := []nuget.ClientOption{
		nuget.WithLogger(service.logger),
		nuget.WithDocumentCacheSize(options.DocumentCacheSize),
	}
	if service.httpClient != nil {
		clientOptions = append(clientOptions, nuget.WithHTTPClient(service.httpClient))
	} else {
		clientOptions = append(clientOptions, nuget.WithTimeout(options.RequestTimeout))
	}

	packageFeeds := make([]packages.Feed, 0, len(sources))
	for _, source := range sources {
		client, clientError := nuget.NewClient(source, clientOptions...)
		if clientError != nil {
			return nil, fmt.Errorf(feedClientErrorTemplateConstant, source.Key, clientError)
		}
		packageFeeds = append(packageFeeds, packages.Feed{Key: source.Key, URL: source.URL, Fetcher: client})
	}

	return packages.NewResolver(service.logger, packageFeeds), nil
}

// pruneProject analyzes project references before package references and applies removals in declaration order.
func (service *Service) pruneProject(project *graph.Project, pruner *Pruner, policy analysis.UnknownPolicy, result *Result) error {
	oracle := graph.Oracle{}

	projectVerdicts, projectAnalysisError := analysis.Analyze(project.ProjectReferences,
		func(reference *graph.ProjectReference) analysis.Identifier {
			return reference.Identifier()
		},
		func(reference *graph.ProjectReference) ([]analysis.Identifier, error) {
			return oracle.DependsOn(reference.Target)
		},
		policy,
	)
	if projectAnalysisError != nil {
		return fmt.Errorf(analysisErrorTemplateConstant, ProjectReferenceKind, project.Path, projectAnalysisError)
	}

	for _, verdict := range projectVerdicts {
		if verdict.Undetermined {
			result.UndeterminedReferences++
		}
	}
	for _, verdict := range analysis.Redundant(projectVerdicts) {
		reference := verdict.Reference
		removal := Removal{
			ProjectPath:     project.Path,
			ProjectFileName: project.FileName(),
			Kind:            ProjectReferenceKind,
			Identifier:      reference.Target.Name,
			Include:         reference.Include,
			CoveredBy:       projectVerdicts[verdict.CoveredBy].Reference.Target.Name,
		}
		applied, applyError := service.applyRemoval(pruner, removal, reference.Includes(), result)
		if applyError != nil {
			return applyError
		}
		if applied {
			project.RemoveProjectReference(reference.Target)
		}
	}

	packageVerdicts, packageAnalysisError := analysis.Analyze(project.PackageReferences,
		func(reference *graph.PackageReference) analysis.Identifier {
			return reference.Identifier()
		},
		func(reference *graph.PackageReference) ([]analysis.Identifier, error) {
			return oracle.DependsOn(reference.Metadata)
		},
		policy,
	)
	if packageAnalysisError != nil {
		return fmt.Errorf(analysisErrorTemplateConstant, PackageReferenceKind, project.Path, packageAnalysisError)
	}

	for _, verdict := range packageVerdicts {
		if verdict.Undetermined {
			result.UndeterminedReferences++
		}
	}
	for _, verdict := range analysis.Redundant(packageVerdicts) {
		reference := verdict.Reference
		removal := Removal{
			ProjectPath:     project.Path,
			ProjectFileName: project.FileName(),
			Kind:            PackageReferenceKind,
			Identifier:      reference.ID,
			Include:         reference.ID,
			CoveredBy:       packageVerdicts[verdict.CoveredBy].Reference.ID,
		}
		applied, applyError := service.applyRemoval(pruner, removal, []string{reference.ID}, result)
		if applyError != nil {
			return applyError
		}
		if applied {
			project.RemovePackageReference(reference.ID)
		}
	}

	return nil
}

// applyRemoval deletes the declaration lines of every spelling in includes and records one removal for them.
func (service *Service) applyRemoval(pruner *Pruner, removal Removal, includes []string, result *Result) (bool, error) {
	removedLines := 0
	for _, include := range includes {
		includeLines, removeError := pruner.Remove(removal.ProjectPath, removal.Kind, include)
		if removeError != nil {
			return false, removeError
		}
		removedLines += includeLines
	}
	if removedLines == 0 {
		service.logger.Warn(referenceLineMissingMessageConstant,
			zap.String(logFieldProjectPathConstant, removal.ProjectPath),
			zap.String(logFieldReferenceConstant, removal.Include),
			zap.String(logFieldCoveredByConstant, removal.CoveredBy),
		)
		return false, nil
	}

	removal.LinesRemoved = removedLines
	result.Removals = append(result.Removals, removal)
	reportRemoval(service.reporter, result.DryRun, removal)
	return true, nil
}

func (service *Service) writeReport(reportPath string, result Result) error {
	resolvedPath := service.pathResolver.Resolve("", reportPath)
	if len(resolvedPath) == 0 {
		return nil
	}

	encoded, encodeError := yaml.Marshal(result)
	if encodeError != nil {
		return fmt.Errorf(reportEncodeErrorTemplateConstant, encodeError)
	}

	if writeError := service.fileSystem.WriteFile(resolvedPath, encoded, reportFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, resolvedPath, writeError)
	}

	service.logger.Info(reportWrittenMessageConstant, zap.String(logFieldReportPathConstant, resolvedPath))
	return nil
}
