package packages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	feedMissMessageConstant           = "package not found in feed"
	feedFailureMessageConstant        = "package feed query failed"
	packageResolvedMessageConstant    = "package metadata resolved"
	feedFailureTemplateConstant       = "%s: %v"
	logFieldPackageIDConstant         = "package_id"
	logFieldPackageVersionConstant    = "package_version"
	logFieldSourceKeyConstant         = "source_key"
	logFieldSourceURLConstant         = "source_url"
	logFieldDependencyCountConstant   = "dependency_count"
	logFieldDependenciesKnownConstant = "dependencies_known"
)

// MetadataFetcher queries a single feed for package metadata.
// Implementations return ErrMetadataNotFound when the feed does not know the package version.
type MetadataFetcher interface {
	FetchMetadata(fetchContext context.Context, packageID string, version string) (*Metadata, error)
}

// Feed pairs a configured package source with the fetcher that queries it.
type Feed struct {
	Key     string
	URL     string
	Fetcher MetadataFetcher
}

// Resolver resolves package metadata across feeds with a run-scoped cache.
// A Resolver is owned by a single run and is not safe for concurrent use.
type Resolver struct {
	logger  *zap.Logger
	feeds   []Feed
	cache   map[string]*Metadata
	lookups int
}

// NewResolver constructs a Resolver querying feeds in the supplied order.
func NewResolver(logger *zap.Logger, feeds []Feed) *Resolver {
	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	orderedFeeds := make([]Feed, len(feeds))
	copy(orderedFeeds, feeds)

	return &Resolver{
		logger: resolvedLogger,
		feeds:  orderedFeeds,
		cache:  make(map[string]*Metadata),
	}
}

// Resolve returns metadata for packageID, consulting the cache before any feed.
// The version only influences the first lookup of an id; later lookups return the cached entry.
func (resolver *Resolver) Resolve(resolveContext context.Context, packageID string, version string) (*Metadata, error) {
	cacheKey := CacheKey(packageID)
	if cachedMetadata, found := resolver.cache[cacheKey]; found {
		return cachedMetadata, nil
	}

	queriedSources := make([]string, 0, len(resolver.feeds))
	var failures []string
	for _, feed := range resolver.feeds {
		if contextError := resolveContext.Err(); contextError != nil {
			return nil, contextError
		}

		queriedSources = append(queriedSources, feed.URL)
		resolver.lookups++
		metadata, fetchError := feed.Fetcher.FetchMetadata(resolveContext, packageID, version)
		if fetchError != nil {
			if errors.Is(fetchError, ErrMetadataNotFound) {
				resolver.logger.Debug(feedMissMessageConstant,
					zap.String(logFieldPackageIDConstant, packageID),
					zap.String(logFieldSourceKeyConstant, feed.Key),
				)
				continue
			}
			if resolveContext.Err() != nil {
				return nil, fetchError
			}
			resolver.logger.Warn(feedFailureMessageConstant,
				zap.String(logFieldPackageIDConstant, packageID),
				zap.String(logFieldSourceKeyConstant, feed.Key),
				zap.String(logFieldSourceURLConstant, feed.URL),
				zap.Error(fetchError),
			)
			failures = append(failures, fmt.Sprintf(feedFailureTemplateConstant, feed.URL, fetchError))
			continue
		}
		if metadata == nil {
			continue
		}

		resolver.normalize(metadata, packageID, version, feed.URL)
		resolver.cache[cacheKey] = metadata
		resolver.logger.Debug(packageResolvedMessageConstant,
			zap.String(logFieldPackageIDConstant, metadata.ID),
			zap.String(logFieldPackageVersionConstant, metadata.Version),
			zap.String(logFieldSourceURLConstant, metadata.SourceURL),
			zap.Int(logFieldDependencyCountConstant, len(metadata.Dependencies)),
			zap.Bool(logFieldDependenciesKnownConstant, metadata.DependenciesKnown),
		)
		return metadata, nil
	}

	return nil, &PackageNotFoundError{
		PackageID: packageID,
		Version:   version,
		Sources:   queriedSources,
		Failures:  failures,
	}
}

// Lookups reports how many feed queries the resolver has issued.
func (resolver *Resolver) Lookups() int {
	return resolver.lookups
}

func (resolver *Resolver) normalize(metadata *Metadata, packageID string, version string, sourceURL string) {
	if len(strings.TrimSpace(metadata.ID)) == 0 {
		metadata.ID = packageID
	}
	if len(strings.TrimSpace(metadata.Version)) == 0 {
		metadata.Version = version
	}
	if len(strings.TrimSpace(metadata.SourceURL)) == 0 {
		metadata.SourceURL = sourceURL
	}
}
