package prune_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/graph"
	"github.com/temirov/refprune/internal/packages"
	"github.com/temirov/refprune/internal/prune"
)

const (
	serviceSolutionFileNameConstant       = "Contoso.sln"
	serviceBasePlaceholderConstant        = "{{base}}"
	servicePrivateBasePlaceholderConstant = "{{private}}"
	serviceServiceIndexPathConstant       = "/v3/index.json"
	serviceLoggingIndexPathConstant       = "/registration/contoso.logging/index.json"
	serviceFeedUsernameConstant           = "builder"
	serviceFeedPasswordConstant           = "s3cret"
	serviceAppProjectPathConstant         = "App/App.csproj"
	serviceCoreProjectPathConstant        = "Core/Core.csproj"
	serviceDataProjectPathConstant        = "Data/Data.csproj"
	serviceToolsProjectPathConstant       = "Tools/Tools.csproj"
	serviceUndeterminedMessageConstant    = "references kept because sibling dependency data is unavailable"
	serviceExpectedOutputConstant         = "Removing Data from App.csproj\nRemoving Contoso.Abstractions from App.csproj\n"
	serviceExpectedDryRunOutputConstant   = "Would remove Data from App.csproj\nWould remove Contoso.Abstractions from App.csproj\n"
	serviceEnvironmentFileContentConstant = "FEED_PASSWORD=" + serviceFeedPasswordConstant + "\n"
)

const serviceSolutionContentConstant = `Microsoft Visual Studio Solution File, Format Version 12.00
Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "App", "App\App.csproj", "{11111111-1111-1111-1111-111111111111}"
EndProject
Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "Core", "Core\Core.csproj", "{22222222-2222-2222-2222-222222222222}"
EndProject
Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "Data", "Data\Data.csproj", "{33333333-3333-3333-3333-333333333333}"
EndProject
Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "Tools", "Tools\Tools.csproj", "{44444444-4444-4444-4444-444444444444}"
EndProject
`

const serviceAppProjectContentConstant = "<Project Sdk=\"Microsoft.NET.Sdk\">\r\n" +
	"  <ItemGroup>\r\n" +
	"    <ProjectReference Include=\"..\\Core\\Core.csproj\" />\r\n" +
	"    <ProjectReference Include=\"..\\Data\\Data.csproj\" />\r\n" +
	"  </ItemGroup>\r\n" +
	"  <ItemGroup>\r\n" +
	"    <PackageReference Include=\"Contoso.Logging\" Version=\"2.1.0\" />\r\n" +
	"    <PackageReference Include=\"Contoso.Abstractions\" Version=\"2.1.0\" />\r\n" +
	"  </ItemGroup>\r\n" +
	"</Project>\r\n"

const serviceAppProjectPrunedContentConstant = "<Project Sdk=\"Microsoft.NET.Sdk\">\r\n" +
	"  <ItemGroup>\r\n" +
	"    <ProjectReference Include=\"..\\Core\\Core.csproj\" />\r\n" +
	"  </ItemGroup>\r\n" +
	"  <ItemGroup>\r\n" +
	"    <PackageReference Include=\"Contoso.Logging\" Version=\"2.1.0\" />\r\n" +
	"  </ItemGroup>\r\n" +
	"</Project>\r\n"

const serviceAppMixedSeparatorProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <ProjectReference Include="..\Core\Core.csproj" />
    <ProjectReference Include="..\Data\Data.csproj" />
    <ProjectReference Include="../Data/Data.csproj" />
  </ItemGroup>
</Project>
`

const serviceAppMixedSeparatorPrunedContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <ProjectReference Include="..\Core\Core.csproj" />
  </ItemGroup>
</Project>
`

const serviceCoreProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <ProjectReference Include="..\Data\Data.csproj" />
    <PackageReference Include="Contoso.Abstractions" Version="2.1.0" />
  </ItemGroup>
</Project>
`

const serviceDataProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
</Project>
`

const serviceToolsProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Contoso.Logging" Version="2.1.0" />
  </ItemGroup>
</Project>
`

const serviceToolsUnknownProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Contoso.Broken" Version="3.0.0" />
    <PackageReference Include="Contoso.Abstractions" Version="2.1.0" />
  </ItemGroup>
</Project>
`

const serviceDanglingProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <ProjectReference Include="..\Missing\Missing.csproj" />
  </ItemGroup>
</Project>
`

const serviceMissingPackageProjectContentConstant = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Contoso.Missing" Version="1.0.0" />
    <PackageReference Include="Contoso.Logging" Version="2.1.0" />
  </ItemGroup>
</Project>
`

const serviceFeedConfigurationContentConstant = `<?xml version="1.0" encoding="utf-8"?>
<configuration>
  <packageSources>
    <clear />
    <add key="Private Feed" value="{{private}}/v3/index.json" />
    <add key="Contoso" value="{{base}}/v3/index.json" />
  </packageSources>
  <packageSourceCredentials>
    <Private_x0020_Feed>
      <add key="Username" value="builder" />
      <add key="ClearTextPassword" value="%FEED_PASSWORD%" />
    </Private_x0020_Feed>
  </packageSourceCredentials>
</configuration>
`

const serviceServiceIndexDocumentConstant = `{"version":"3.0.0","resources":[{"@id":"{{base}}/registration/","@type":"RegistrationsBaseUrl/3.6.0"}]}`

const serviceLoggingRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.logging/index.json#page","count":1,"items":[
  {"@id":"{{base}}/registration/contoso.logging/2.1.0.json","catalogEntry":{"id":"Contoso.Logging","version":"2.1.0","dependencyGroups":[
    {"targetFramework":"net8.0","dependencies":[{"id":"Contoso.Abstractions","range":"[2.1.0, )"}]}
  ]}}
]}]}`

const serviceAbstractionsRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.abstractions/index.json#page","count":1,"items":[
  {"@id":"{{base}}/registration/contoso.abstractions/2.1.0.json","catalogEntry":{"id":"Contoso.Abstractions","version":"2.1.0"}}
]}]}`

const serviceBrokenRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.broken/index.json#page","count":1,"items":[
  {"@id":"{{base}}/registration/contoso.broken/3.0.0.json","catalogEntry":"{{base}}/catalog/contoso.broken.3.0.0.json"}
]}]}`

type serviceFeed struct {
	server            *httptest.Server
	documents         map[string]string
	requireBasicAuth  bool
	mutex             sync.Mutex
	requestCounts     map[string]int
	unauthorizedCount int
}

func newServiceFeed(testInstance *testing.T, documents map[string]string, requireBasicAuth bool) *serviceFeed {
	testInstance.Helper()

	feed := &serviceFeed{documents: documents, requireBasicAuth: requireBasicAuth, requestCounts: make(map[string]int)}
	feed.server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		feed.mutex.Lock()
		feed.requestCounts[request.URL.Path]++
		feed.mutex.Unlock()

		if feed.requireBasicAuth {
			username, password, provided := request.BasicAuth()
			if !provided || username != serviceFeedUsernameConstant || password != serviceFeedPasswordConstant {
				feed.mutex.Lock()
				feed.unauthorizedCount++
				feed.mutex.Unlock()
				responseWriter.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		document, found := feed.documents[request.URL.Path]
		if !found {
			http.NotFound(responseWriter, request)
			return
		}
		_, _ = responseWriter.Write([]byte(strings.ReplaceAll(document, serviceBasePlaceholderConstant, feed.server.URL)))
	}))
	testInstance.Cleanup(feed.server.Close)

	return feed
}

func (feed *serviceFeed) requests(path string) int {
	feed.mutex.Lock()
	defer feed.mutex.Unlock()
	return feed.requestCounts[path]
}

func (feed *serviceFeed) unauthorizedRequests() int {
	feed.mutex.Lock()
	defer feed.mutex.Unlock()
	return feed.unauthorizedCount
}

type solutionFixture struct {
	directory    string
	solutionPath string
	contosoFeed  *serviceFeed
	privateFeed  *serviceFeed
}

func newSolutionFixture(testInstance *testing.T, overrides map[string]string) solutionFixture {
	testInstance.Helper()

	contosoFeed := newServiceFeed(testInstance, map[string]string{
		serviceServiceIndexPathConstant:                 serviceServiceIndexDocumentConstant,
		serviceLoggingIndexPathConstant:                 serviceLoggingRegistrationDocumentConstant,
		"/registration/contoso.abstractions/index.json": serviceAbstractionsRegistrationDocumentConstant,
		"/registration/contoso.broken/index.json":       serviceBrokenRegistrationDocumentConstant,
	}, false)
	privateFeed := newServiceFeed(testInstance, map[string]string{
		serviceServiceIndexPathConstant: serviceServiceIndexDocumentConstant,
	}, true)

	directory := testInstance.TempDir()
	feedConfiguration := strings.ReplaceAll(serviceFeedConfigurationContentConstant, servicePrivateBasePlaceholderConstant, privateFeed.server.URL)
	feedConfiguration = strings.ReplaceAll(feedConfiguration, serviceBasePlaceholderConstant, contosoFeed.server.URL)

	files := map[string]string{
		serviceSolutionFileNameConstant: serviceSolutionContentConstant,
		"nuget.config":                  feedConfiguration,
		".env":                          serviceEnvironmentFileContentConstant,
		serviceAppProjectPathConstant:   serviceAppProjectContentConstant,
		serviceCoreProjectPathConstant:  serviceCoreProjectContentConstant,
		serviceDataProjectPathConstant:  serviceDataProjectContentConstant,
		serviceToolsProjectPathConstant: serviceToolsProjectContentConstant,
	}
	for relativePath, contents := range overrides {
		files[relativePath] = contents
	}

	for relativePath, contents := range files {
		absolutePath := filepath.Join(directory, filepath.FromSlash(relativePath))
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
		require.NoError(testInstance, os.WriteFile(absolutePath, []byte(contents), 0o644))
	}

	return solutionFixture{
		directory:    directory,
		solutionPath: filepath.Join(directory, serviceSolutionFileNameConstant),
		contosoFeed:  contosoFeed,
		privateFeed:  privateFeed,
	}
}

func (fixture solutionFixture) path(relativePath string) string {
	return filepath.Join(fixture.directory, filepath.FromSlash(relativePath))
}

func (fixture solutionFixture) read(testInstance *testing.T, relativePath string) string {
	testInstance.Helper()

	contents, readError := os.ReadFile(fixture.path(relativePath))
	require.NoError(testInstance, readError)
	return string(contents)
}

func noProcessEnvironment(string) (string, bool) {
	return "", false
}

func newTestService(logger *zap.Logger, output *bytes.Buffer) *prune.Service {
	return prune.NewService(prune.ServiceDependencies{
		Logger:            logger,
		Reporter:          prune.NewWriterReporter(output),
		EnvironmentLookup: noProcessEnvironment,
	})
}

func TestServicePrunesRedundantReferences(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newSolutionFixture(testInstance, nil)
	output := &bytes.Buffer{}

	result, executionError := newTestService(nil, output).Execute(context.Background(), prune.Options{SolutionPath: fixture.solutionPath})
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []prune.Removal{
		{
			ProjectPath:     fixture.path(serviceAppProjectPathConstant),
			ProjectFileName: "App.csproj",
			Kind:            prune.ProjectReferenceKind,
			Identifier:      "Data",
			Include:         `..\Data\Data.csproj`,
			CoveredBy:       "Core",
			LinesRemoved:    1,
		},
		{
			ProjectPath:     fixture.path(serviceAppProjectPathConstant),
			ProjectFileName: "App.csproj",
			Kind:            prune.PackageReferenceKind,
			Identifier:      "Contoso.Abstractions",
			Include:         "Contoso.Abstractions",
			CoveredBy:       "Contoso.Logging",
			LinesRemoved:    1,
		},
	}, result.Removals)
	require.Equal(testInstance, serviceExpectedOutputConstant, output.String())
	require.Zero(testInstance, result.UndeterminedReferences)

	require.Equal(testInstance, serviceAppProjectPrunedContentConstant, fixture.read(testInstance, serviceAppProjectPathConstant))
	require.Equal(testInstance, serviceCoreProjectContentConstant, fixture.read(testInstance, serviceCoreProjectPathConstant))
	require.Equal(testInstance, serviceToolsProjectContentConstant, fixture.read(testInstance, serviceToolsProjectPathConstant))

	require.Equal(testInstance, 1, fixture.contosoFeed.requests(serviceLoggingIndexPathConstant))
	require.Equal(testInstance, 1, fixture.privateFeed.requests("/registration/contoso.logging/index.json"))
	require.Equal(testInstance, 4, result.PackageLookups)
	require.Zero(testInstance, fixture.privateFeed.unauthorizedRequests())
}

func TestServiceIsIdempotent(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newSolutionFixture(testInstance, nil)

	_, firstError := newTestService(nil, &bytes.Buffer{}).Execute(context.Background(), prune.Options{SolutionPath: fixture.solutionPath})
	require.NoError(testInstance, firstError)

	secondOutput := &bytes.Buffer{}
	secondResult, secondError := newTestService(nil, secondOutput).Execute(context.Background(), prune.Options{SolutionPath: fixture.solutionPath})
	require.NoError(testInstance, secondError)
	require.Empty(testInstance, secondResult.Removals)
	require.Empty(testInstance, secondOutput.String())
	require.Equal(testInstance, serviceAppProjectPrunedContentConstant, fixture.read(testInstance, serviceAppProjectPathConstant))
}

func TestServiceRemovesEverySpellingOfRedundantProjectReference(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newSolutionFixture(testInstance, map[string]string{serviceAppProjectPathConstant: serviceAppMixedSeparatorProjectContentConstant})
	output := &bytes.Buffer{}

	result, executionError := newTestService(nil, output).Execute(context.Background(), prune.Options{SolutionPath: fixture.solutionPath})
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []prune.Removal{
		{
			ProjectPath:     fixture.path(serviceAppProjectPathConstant),
			ProjectFileName: "App.csproj",
			Kind:            prune.ProjectReferenceKind,
			Identifier:      "Data",
			Include:         `..\Data\Data.csproj`,
			CoveredBy:       "Core",
			LinesRemoved:    2,
		},
	}, result.Removals)
	require.Equal(testInstance, "Removing Data from App.csproj\n", output.String())
	require.Equal(testInstance, serviceAppMixedSeparatorPrunedContentConstant, fixture.read(testInstance, serviceAppProjectPathConstant))
}

func TestServiceDryRunReportsWithoutWriting(testInstance *testing.T) {
	testInstance.Parallel()

	dryRunFixture := newSolutionFixture(testInstance, nil)
	dryRunOutput := &bytes.Buffer{}
	dryRunResult, dryRunError := newTestService(nil, dryRunOutput).Execute(context.Background(), prune.Options{SolutionPath: dryRunFixture.solutionPath, DryRun: true})
	require.NoError(testInstance, dryRunError)
	require.True(testInstance, dryRunResult.DryRun)
	require.Equal(testInstance, serviceExpectedDryRunOutputConstant, dryRunOutput.String())
	require.Equal(testInstance, serviceAppProjectContentConstant, dryRunFixture.read(testInstance, serviceAppProjectPathConstant))

	appliedFixture := newSolutionFixture(testInstance, nil)
	appliedResult, appliedError := newTestService(nil, &bytes.Buffer{}).Execute(context.Background(), prune.Options{SolutionPath: appliedFixture.solutionPath})
	require.NoError(testInstance, appliedError)

	require.Len(testInstance, dryRunResult.Removals, len(appliedResult.Removals))
	for removalIndex := range appliedResult.Removals {
		require.Equal(testInstance, appliedResult.Removals[removalIndex].Kind, dryRunResult.Removals[removalIndex].Kind)
		require.Equal(testInstance, appliedResult.Removals[removalIndex].Identifier, dryRunResult.Removals[removalIndex].Identifier)
		require.Equal(testInstance, appliedResult.Removals[removalIndex].LinesRemoved, dryRunResult.Removals[removalIndex].LinesRemoved)
	}
}

func TestServiceAbortsBeforeRewriting(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name          string
		overrides     map[string]string
		expectedError error
	}{
		{
			name:          "dangling_project_reference",
			overrides:     map[string]string{serviceToolsProjectPathConstant: serviceDanglingProjectContentConstant},
			expectedError: graph.ErrDanglingReference,
		},
		{
			name:          "package_missing_from_every_feed",
			overrides:     map[string]string{serviceToolsProjectPathConstant: serviceMissingPackageProjectContentConstant},
			expectedError: packages.ErrPackageNotFound,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			fixture := newSolutionFixture(subTest, testCase.overrides)
			output := &bytes.Buffer{}

			_, executionError := newTestService(nil, output).Execute(context.Background(), prune.Options{SolutionPath: fixture.solutionPath})
			require.ErrorIs(subTest, executionError, testCase.expectedError)
			require.Empty(subTest, output.String())
			require.Equal(subTest, serviceAppProjectContentConstant, fixture.read(subTest, serviceAppProjectPathConstant))
		})
	}
}

func TestServiceHandlesUnknownDependencyData(testInstance *testing.T) {
	testInstance.Parallel()

	overrides := map[string]string{serviceToolsProjectPathConstant: serviceToolsUnknownProjectContentConstant}

	keepFixture := newSolutionFixture(testInstance, overrides)
	observedCore, observedLogs := observer.New(zapcore.WarnLevel)
	keepResult, keepError := newTestService(zap.New(observedCore), &bytes.Buffer{}).Execute(context.Background(), prune.Options{
		SolutionPath:        keepFixture.solutionPath,
		UnknownDependencies: analysis.KeepUnknownPolicy,
	})
	require.NoError(testInstance, keepError)
	require.Equal(testInstance, 1, keepResult.UndeterminedReferences)
	require.Equal(testInstance, serviceToolsUnknownProjectContentConstant, keepFixture.read(testInstance, serviceToolsProjectPathConstant))
	require.Equal(testInstance, 1, observedLogs.FilterMessage(serviceUndeterminedMessageConstant).Len())

	abortFixture := newSolutionFixture(testInstance, overrides)
	_, abortError := newTestService(nil, &bytes.Buffer{}).Execute(context.Background(), prune.Options{
		SolutionPath:        abortFixture.solutionPath,
		UnknownDependencies: analysis.AbortUnknownPolicy,
	})
	require.ErrorIs(testInstance, abortError, graph.ErrDependencyDataUnavailable)
	require.Equal(testInstance, serviceAppProjectPrunedContentConstant, abortFixture.read(testInstance, serviceAppProjectPathConstant))
}

func TestServiceWritesReport(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newSolutionFixture(testInstance, nil)
	reportPath := filepath.Join(testInstance.TempDir(), "removals.yaml")

	result, executionError := newTestService(nil, &bytes.Buffer{}).Execute(context.Background(), prune.Options{
		SolutionPath: fixture.solutionPath,
		ReportPath:   reportPath,
	})
	require.NoError(testInstance, executionError)

	reportContents, readError := os.ReadFile(reportPath)
	require.NoError(testInstance, readError)

	var decodedReport prune.Result
	require.NoError(testInstance, yaml.Unmarshal(reportContents, &decodedReport))
	require.Equal(testInstance, result, decodedReport)
}

func TestServiceRejectsMissingSolution(testInstance *testing.T) {
	testInstance.Parallel()

	missingPath := filepath.Join(testInstance.TempDir(), serviceSolutionFileNameConstant)
	_, executionError := newTestService(nil, &bytes.Buffer{}).Execute(context.Background(), prune.Options{SolutionPath: missingPath})
	require.ErrorIs(testInstance, executionError, os.ErrNotExist)
}
