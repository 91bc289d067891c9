package nuget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/feeds"
	"github.com/temirov/refprune/internal/packages"
)

// Client configuration defaults.
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultDocumentCacheSize = 256
)

const (
	registrationsResourceTypePrefixConstant = "RegistrationsBaseUrl"
	registrationIndexTemplateConstant       = "%s/%s/index.json"
	jsonDocumentSuffixConstant              = ".json"
	acceptHeaderConstant                    = "Accept"
	jsonMediaTypeConstant                   = "application/json"
	sourceURLMissingMessageConstant         = "package source URL must be provided"
	statusErrorTemplateConstant             = "HTTP %d: %s"
	serviceIndexErrorTemplateConstant       = "unable to read service index %s: %w"
	registrationsMissingTemplateConstant    = "service index %s does not declare a registrations resource"
	registrationErrorTemplateConstant       = "unable to read registrations for %s: %w"
	versionNotFoundTemplateConstant         = "%w: %s %s in %s"
	documentDecodeErrorTemplateConstant     = "unable to decode %s: %w"
	cacheCreationErrorTemplateConstant      = "unable to create document cache: %w"
	catalogEntryUnavailableMessageConstant  = "catalog entry unavailable; dependencies unknown"
	serviceIndexResolvedMessageConstant     = "registrations resource resolved"
	logFieldSourceURLConstant               = "source_url"
	logFieldRegistrationsURLConstant        = "registrations_url"
	logFieldCatalogURLConstant              = "catalog_url"
	logFieldPackageIDConstant               = "package_id"
	logFieldPackageVersionConstant          = "package_version"
)

// StatusError reports an unexpected HTTP status for a feed document.
type StatusError struct {
	URL        string
	StatusCode int
}

func (statusError *StatusError) Error() string {
	return fmt.Sprintf(statusErrorTemplateConstant, statusError.StatusCode, statusError.URL)
}

// Client reads package metadata from a single NuGet v3 feed.
type Client struct {
	source            feeds.Source
	httpClient        *http.Client
	logger            *zap.Logger
	documentCacheSize int
	documents         *lru.Cache[string, []byte]
	registrationsURL  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout. Zero or negative values keep the default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		if timeout > 0 {
			client.httpClient.Timeout = timeout
		}
	}
}

// WithDocumentCacheSize bounds the number of cached JSON documents.
func WithDocumentCacheSize(size int) ClientOption {
	return func(client *Client) {
		if size > 0 {
			client.documentCacheSize = size
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// NewClient creates a client for the given package source.
func NewClient(source feeds.Source, options ...ClientOption) (*Client, error) {
	if len(strings.TrimSpace(source.URL)) == 0 {
		return nil, errors.New(sourceURLMissingMessageConstant)
	}

	client := &Client{
		source:            source,
		httpClient:        &http.Client{Timeout: DefaultRequestTimeout},
		logger:            zap.NewNop(),
		documentCacheSize: DefaultDocumentCacheSize,
	}
	for _, option := range options {
		option(client)
	}

	documents, cacheError := lru.New[string, []byte](client.documentCacheSize)
	if cacheError != nil {
		return nil, fmt.Errorf(cacheCreationErrorTemplateConstant, cacheError)
	}
	client.documents = documents

	return client, nil
}

// FetchMetadata looks up a package version in the feed's registrations.
// A package or version unknown to the feed yields packages.ErrMetadataNotFound.
func (client *Client) FetchMetadata(fetchContext context.Context, packageID string, version string) (*packages.Metadata, error) {
	registrationsURL, registrationsError := client.registrationsBaseURL(fetchContext)
	if registrationsError != nil {
		return nil, registrationsError
	}

	indexURL := fmt.Sprintf(registrationIndexTemplateConstant, registrationsURL, strings.ToLower(strings.TrimSpace(packageID)))
	var index registrationIndexDocument
	if fetchError := client.fetchDocument(fetchContext, indexURL, &index); fetchError != nil {
		var statusError *StatusError
		if errors.As(fetchError, &statusError) && statusError.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf(versionNotFoundTemplateConstant, packages.ErrMetadataNotFound, packageID, version, client.source.URL)
		}
		return nil, fmt.Errorf(registrationErrorTemplateConstant, packageID, fetchError)
	}

	normalizedVersion := NormalizeVersion(version)
	for _, page := range index.Items {
		leaves := page.Items
		if leaves == nil && len(page.ID) > 0 {
			var fetchedPage registrationPage
			if fetchError := client.fetchDocument(fetchContext, page.ID, &fetchedPage); fetchError != nil {
				return nil, fmt.Errorf(registrationErrorTemplateConstant, packageID, fetchError)
			}
			leaves = fetchedPage.Items
		}

		for _, leaf := range leaves {
			if NormalizeVersion(leafVersion(leaf)) != normalizedVersion {
				continue
			}
			return client.metadataFromLeaf(fetchContext, packageID, leaf), nil
		}
	}

	return nil, fmt.Errorf(versionNotFoundTemplateConstant, packages.ErrMetadataNotFound, packageID, version, client.source.URL)
}

func (client *Client) metadataFromLeaf(fetchContext context.Context, packageID string, leaf registrationLeaf) *packages.Metadata {
	metadata := &packages.Metadata{
		ID:        packageID,
		Version:   leafVersion(leaf),
		SourceURL: client.source.URL,
	}

	entry := leaf.CatalogEntry.Entry
	if entry == nil {
		var fetchedEntry catalogEntry
		if fetchError := client.fetchDocument(fetchContext, leaf.CatalogEntry.URL, &fetchedEntry); fetchError != nil {
			client.logger.Warn(catalogEntryUnavailableMessageConstant,
				zap.String(logFieldPackageIDConstant, packageID),
				zap.String(logFieldPackageVersionConstant, metadata.Version),
				zap.String(logFieldCatalogURLConstant, leaf.CatalogEntry.URL),
				zap.Error(fetchError),
			)
			return metadata
		}
		entry = &fetchedEntry
	}

	if len(strings.TrimSpace(entry.ID)) > 0 {
		metadata.ID = entry.ID
	}
	metadata.Dependencies = dependencyIDs(entry.DependencyGroups)
	metadata.DependenciesKnown = true
	return metadata
}

func (client *Client) registrationsBaseURL(fetchContext context.Context) (string, error) {
	if len(client.registrationsURL) > 0 {
		return client.registrationsURL, nil
	}

	var serviceIndex serviceIndexDocument
	if fetchError := client.fetchDocument(fetchContext, client.source.URL, &serviceIndex); fetchError != nil {
		return "", fmt.Errorf(serviceIndexErrorTemplateConstant, client.source.URL, fetchError)
	}

	for _, resource := range serviceIndex.Resources {
		if strings.HasPrefix(resource.Type, registrationsResourceTypePrefixConstant) && len(resource.ID) > 0 {
			client.registrationsURL = strings.TrimSuffix(resource.ID, "/")
			client.logger.Debug(serviceIndexResolvedMessageConstant,
				zap.String(logFieldSourceURLConstant, client.source.URL),
				zap.String(logFieldRegistrationsURLConstant, client.registrationsURL),
			)
			return client.registrationsURL, nil
		}
	}

	return "", fmt.Errorf(registrationsMissingTemplateConstant, client.source.URL)
}

func (client *Client) fetchDocument(fetchContext context.Context, documentURL string, target any) error {
	contents, fetchError := client.fetch(fetchContext, documentURL)
	if fetchError != nil {
		return fetchError
	}
	if decodeError := json.Unmarshal(contents, target); decodeError != nil {
		return fmt.Errorf(documentDecodeErrorTemplateConstant, documentURL, decodeError)
	}
	return nil
}

// fetch performs an HTTP GET, serving repeated URLs from the document cache.
func (client *Client) fetch(fetchContext context.Context, documentURL string) ([]byte, error) {
	if cachedContents, found := client.documents.Get(documentURL); found {
		return cachedContents, nil
	}

	request, requestError := http.NewRequestWithContext(fetchContext, http.MethodGet, documentURL, http.NoBody)
	if requestError != nil {
		return nil, requestError
	}
	request.Header.Set(acceptHeaderConstant, jsonMediaTypeConstant)
	if client.source.HasCredentials() {
		request.SetBasicAuth(client.source.Username, client.source.Password)
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return nil, responseError
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: documentURL, StatusCode: response.StatusCode}
	}

	contents, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, readError
	}

	client.documents.Add(documentURL, contents)
	return contents, nil
}

// leafVersion returns the version of a registration leaf, falling back to the leaf document name
// when the catalog entry is only linked.
func leafVersion(leaf registrationLeaf) string {
	if entryVersion := leaf.CatalogEntry.version(); len(entryVersion) > 0 {
		return entryVersion
	}
	return strings.TrimSuffix(path.Base(leaf.ID), jsonDocumentSuffixConstant)
}

// dependencyIDs returns the union of dependency ids across all groups in first-seen order.
func dependencyIDs(groups []dependencyGroup) []string {
	seen := make(map[string]struct{})
	identifiers := make([]string, 0)
	for _, group := range groups {
		for _, dependency := range group.Dependencies {
			trimmedID := strings.TrimSpace(dependency.ID)
			if len(trimmedID) == 0 {
				continue
			}
			key := packages.CacheKey(trimmedID)
			if _, duplicate := seen[key]; duplicate {
				continue
			}
			seen[key] = struct{}{}
			identifiers = append(identifiers, trimmedID)
		}
	}
	return identifiers
}
