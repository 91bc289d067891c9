package nuget_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/refprune/internal/feeds"
	"github.com/temirov/refprune/internal/nuget"
	"github.com/temirov/refprune/internal/packages"
)

const (
	feedServiceIndexPathConstant      = "/v3/index.json"
	feedBasePlaceholderConstant       = "{{base}}"
	feedUsernameConstant              = "builder"
	feedPasswordConstant              = "s3cret"
	inlinedPackageIDConstant          = "Contoso.Logging"
	pagedPackageIDConstant            = "Contoso.Paged"
	brokenPackageIDConstant           = "Contoso.Broken"
	missingPackageIDConstant          = "Contoso.Missing"
	abstractionsPackageIDConstant     = "Contoso.Abstractions"
	memoryPackageIDConstant           = "System.Memory"
	catalogUnavailableMessageConstant = "catalog entry unavailable; dependencies unknown"
)

const serviceIndexDocumentConstant = `{"version":"3.0.0","resources":[
  {"@id":"{{base}}/search","@type":"SearchQueryService"},
  {"@id":"{{base}}/registration/","@type":"RegistrationsBaseUrl/3.6.0"}
]}`

const inlinedRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.logging/index.json#page/1.0.0/2.1.0","count":2,"lower":"1.0.0","upper":"2.1.0","items":[
  {"@id":"{{base}}/registration/contoso.logging/1.0.0.json","catalogEntry":{"@id":"{{base}}/catalog/contoso.logging.1.0.0.json","id":"Contoso.Logging","version":"1.0.0"}},
  {"@id":"{{base}}/registration/contoso.logging/2.1.0.json","catalogEntry":{"@id":"{{base}}/catalog/contoso.logging.2.1.0.json","id":"Contoso.Logging","version":"2.1.0+build.7","dependencyGroups":[
    {"targetFramework":"net8.0","dependencies":[{"id":"Contoso.Abstractions","range":"[2.1.0, )"}]},
    {"targetFramework":".NETStandard2.0","dependencies":[{"id":"contoso.abstractions","range":"[2.1.0, )"},{"id":"System.Memory","range":"[4.5.5, )"}]},
    {"targetFramework":"net462"}
  ]}}
]}]}`

const pagedRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.paged/page/1.0.0/1.0.0.json","count":1,"lower":"1.0.0","upper":"1.0.0"}]}`

const pagedPageDocumentConstant = `{"@id":"{{base}}/registration/contoso.paged/page/1.0.0/1.0.0.json","count":1,"items":[
  {"@id":"{{base}}/registration/contoso.paged/1.0.0.json","catalogEntry":"{{base}}/catalog/contoso.paged.1.0.0.json"}
]}`

const pagedCatalogEntryDocumentConstant = `{"id":"Contoso.Paged","version":"1.0.0","dependencyGroups":[{"dependencies":[{"id":"System.Memory"}]}]}`

const brokenRegistrationDocumentConstant = `{"count":1,"items":[{"@id":"{{base}}/registration/contoso.broken/index.json#page","count":1,"items":[
  {"@id":"{{base}}/registration/contoso.broken/3.0.0.json","catalogEntry":"{{base}}/catalog/missing.json"}
]}]}`

type fakeFeed struct {
	server           *httptest.Server
	requireBasicAuth bool
	mutex            sync.Mutex
	requestCounts    map[string]int
}

func newFakeFeed(testInstance *testing.T, requireBasicAuth bool) *fakeFeed {
	testInstance.Helper()

	feed := &fakeFeed{requireBasicAuth: requireBasicAuth, requestCounts: make(map[string]int)}
	documents := map[string]string{
		feedServiceIndexPathConstant:                        serviceIndexDocumentConstant,
		"/registration/contoso.logging/index.json":          inlinedRegistrationDocumentConstant,
		"/registration/contoso.paged/index.json":            pagedRegistrationDocumentConstant,
		"/registration/contoso.paged/page/1.0.0/1.0.0.json": pagedPageDocumentConstant,
		"/catalog/contoso.paged.1.0.0.json":                 pagedCatalogEntryDocumentConstant,
		"/registration/contoso.broken/index.json":           brokenRegistrationDocumentConstant,
	}

	feed.server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		feed.mutex.Lock()
		feed.requestCounts[request.URL.Path]++
		feed.mutex.Unlock()

		if feed.requireBasicAuth {
			username, password, provided := request.BasicAuth()
			if !provided || username != feedUsernameConstant || password != feedPasswordConstant {
				responseWriter.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		document, found := documents[request.URL.Path]
		if !found {
			http.NotFound(responseWriter, request)
			return
		}
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(strings.ReplaceAll(document, feedBasePlaceholderConstant, feed.server.URL)))
	}))
	testInstance.Cleanup(feed.server.Close)

	return feed
}

func (feed *fakeFeed) source() feeds.Source {
	return feeds.Source{Key: "fake", URL: feed.server.URL + feedServiceIndexPathConstant}
}

func (feed *fakeFeed) requests(path string) int {
	feed.mutex.Lock()
	defer feed.mutex.Unlock()
	return feed.requestCounts[path]
}

func TestClientFetchesMetadata(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name                 string
		packageID            string
		version              string
		expectedID           string
		expectedVersion      string
		expectedDependencies []string
	}{
		{
			name:                 "inlined_catalog_entry_unions_groups",
			packageID:            inlinedPackageIDConstant,
			version:              "2.1",
			expectedID:           inlinedPackageIDConstant,
			expectedVersion:      "2.1.0+build.7",
			expectedDependencies: []string{abstractionsPackageIDConstant, memoryPackageIDConstant},
		},
		{
			name:                 "version_without_dependencies",
			packageID:            strings.ToLower(inlinedPackageIDConstant),
			version:              "1.0.0.0",
			expectedID:           inlinedPackageIDConstant,
			expectedVersion:      "1.0.0",
			expectedDependencies: []string{},
		},
		{
			name:                 "paged_registration_with_linked_catalog_entry",
			packageID:            pagedPackageIDConstant,
			version:              "[1.0.0]",
			expectedID:           pagedPackageIDConstant,
			expectedVersion:      "1.0.0",
			expectedDependencies: []string{memoryPackageIDConstant},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			feed := newFakeFeed(subTest, false)
			client, clientError := nuget.NewClient(feed.source(), nuget.WithHTTPClient(feed.server.Client()))
			require.NoError(subTest, clientError)

			metadata, fetchError := client.FetchMetadata(context.Background(), testCase.packageID, testCase.version)
			require.NoError(subTest, fetchError)
			require.Equal(subTest, testCase.expectedID, metadata.ID)
			require.Equal(subTest, testCase.expectedVersion, metadata.Version)
			require.Equal(subTest, feed.source().URL, metadata.SourceURL)
			require.True(subTest, metadata.DependenciesKnown)
			require.Equal(subTest, testCase.expectedDependencies, metadata.Dependencies)
		})
	}
}

func TestClientReportsMissingPackages(testInstance *testing.T) {
	testInstance.Parallel()

	feed := newFakeFeed(testInstance, false)
	client, clientError := nuget.NewClient(feed.source(), nuget.WithHTTPClient(feed.server.Client()))
	require.NoError(testInstance, clientError)

	_, unknownPackageError := client.FetchMetadata(context.Background(), missingPackageIDConstant, "1.0.0")
	require.ErrorIs(testInstance, unknownPackageError, packages.ErrMetadataNotFound)

	_, unknownVersionError := client.FetchMetadata(context.Background(), inlinedPackageIDConstant, "9.0.0")
	require.ErrorIs(testInstance, unknownVersionError, packages.ErrMetadataNotFound)
}

func TestClientMarksDependenciesUnknownWhenCatalogEntryUnavailable(testInstance *testing.T) {
	testInstance.Parallel()

	observedCore, observedLogs := observer.New(zapcore.WarnLevel)
	feed := newFakeFeed(testInstance, false)
	client, clientError := nuget.NewClient(feed.source(),
		nuget.WithHTTPClient(feed.server.Client()),
		nuget.WithLogger(zap.New(observedCore)),
	)
	require.NoError(testInstance, clientError)

	metadata, fetchError := client.FetchMetadata(context.Background(), brokenPackageIDConstant, "3.0.0")
	require.NoError(testInstance, fetchError)
	require.False(testInstance, metadata.DependenciesKnown)
	require.Empty(testInstance, metadata.Dependencies)
	require.Equal(testInstance, 1, observedLogs.FilterMessage(catalogUnavailableMessageConstant).Len())
}

func TestClientCachesDocuments(testInstance *testing.T) {
	testInstance.Parallel()

	feed := newFakeFeed(testInstance, false)
	client, clientError := nuget.NewClient(feed.source(),
		nuget.WithHTTPClient(feed.server.Client()),
		nuget.WithDocumentCacheSize(8),
	)
	require.NoError(testInstance, clientError)

	for range 3 {
		_, fetchError := client.FetchMetadata(context.Background(), inlinedPackageIDConstant, "2.1.0")
		require.NoError(testInstance, fetchError)
	}
	_, pagedError := client.FetchMetadata(context.Background(), pagedPackageIDConstant, "1.0.0")
	require.NoError(testInstance, pagedError)

	require.Equal(testInstance, 1, feed.requests(feedServiceIndexPathConstant))
	require.Equal(testInstance, 1, feed.requests("/registration/contoso.logging/index.json"))
}

func TestClientAuthenticatesWithSourceCredentials(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{name: "credentials_accepted", username: feedUsernameConstant, password: feedPasswordConstant},
		{name: "anonymous_rejected", expectError: true},
		{name: "wrong_password_rejected", username: feedUsernameConstant, password: "wrong", expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			feed := newFakeFeed(subTest, true)
			source := feed.source()
			source.Username = testCase.username
			source.Password = testCase.password

			client, clientError := nuget.NewClient(source, nuget.WithHTTPClient(feed.server.Client()))
			require.NoError(subTest, clientError)

			metadata, fetchError := client.FetchMetadata(context.Background(), inlinedPackageIDConstant, "2.1.0")
			if testCase.expectError {
				require.Error(subTest, fetchError)
				require.NotErrorIs(subTest, fetchError, packages.ErrMetadataNotFound)
				var statusError *nuget.StatusError
				require.ErrorAs(subTest, fetchError, &statusError)
				require.Equal(subTest, http.StatusUnauthorized, statusError.StatusCode)
				return
			}
			require.NoError(subTest, fetchError)
			require.True(subTest, metadata.DependenciesKnown)
		})
	}
}

func TestClientRejectsServiceIndexWithoutRegistrations(testInstance *testing.T) {
	testInstance.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		_, _ = responseWriter.Write([]byte(`{"version":"3.0.0","resources":[{"@id":"https://example.com/query","@type":"SearchQueryService"}]}`))
	}))
	testInstance.Cleanup(server.Close)

	client, clientError := nuget.NewClient(feeds.Source{Key: "search-only", URL: server.URL + feedServiceIndexPathConstant}, nuget.WithHTTPClient(server.Client()))
	require.NoError(testInstance, clientError)

	_, fetchError := client.FetchMetadata(context.Background(), inlinedPackageIDConstant, "2.1.0")
	require.Error(testInstance, fetchError)
	require.NotErrorIs(testInstance, fetchError, packages.ErrMetadataNotFound)
	require.Contains(testInstance, fetchError.Error(), "registrations resource")
}

func TestNewClientRequiresSourceURL(testInstance *testing.T) {
	testInstance.Parallel()

	_, clientError := nuget.NewClient(feeds.Source{Key: "empty", URL: " "})
	require.Error(testInstance, clientError)
}
