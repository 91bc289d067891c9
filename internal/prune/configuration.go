package prune

import (
	"strings"
	"time"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/feeds"
	"github.com/temirov/refprune/internal/nuget"
	pathutils "github.com/temirov/refprune/internal/utils/path"
)

const (
	configurationDryRunKeyConstant              = "dry_run"
	configurationFeedConfigurationKeyConstant   = "feed_configuration"
	configurationReportPathKeyConstant          = "report_path"
	configurationUnknownDependenciesKeyConstant = "unknown_dependencies"
	configurationRequestTimeoutKeyConstant      = "request_timeout"
	configurationDocumentCacheSizeKeyConstant   = "document_cache_size"
)

var pruneConfigurationPathResolver = pathutils.NewResolver()

// Configuration stores persisted options for pruning runs.
type Configuration struct {
	DryRun              bool                                `mapstructure:"dry_run"`
	FeedConfiguration   string                              `mapstructure:"feed_configuration"`
	ReportPath          string                              `mapstructure:"report_path"`
	UnknownDependencies string                              `mapstructure:"unknown_dependencies"`
	RequestTimeout      time.Duration                       `mapstructure:"request_timeout"`
	DocumentCacheSize   int                                 `mapstructure:"document_cache_size"`
	Credentials         map[string]feeds.CredentialOverride `mapstructure:"credentials"`
}

// DefaultConfiguration supplies baseline values for pruning.
func DefaultConfiguration() Configuration {
	return Configuration{
		DryRun:              false,
		FeedConfiguration:   feeds.DefaultConfigurationFileNameConstant,
		UnknownDependencies: string(analysis.KeepUnknownPolicy),
		RequestTimeout:      nuget.DefaultRequestTimeout,
		DocumentCacheSize:   nuget.DefaultDocumentCacheSize,
	}
}

// DefaultConfigurationValues flattens the defaults beneath rootKey for the configuration loader.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationDryRunKeyConstant:              defaults.DryRun,
		rootKey + "." + configurationFeedConfigurationKeyConstant:   defaults.FeedConfiguration,
		rootKey + "." + configurationReportPathKeyConstant:          defaults.ReportPath,
		rootKey + "." + configurationUnknownDependenciesKeyConstant: defaults.UnknownDependencies,
		rootKey + "." + configurationRequestTimeoutKeyConstant:      defaults.RequestTimeout.String(),
		rootKey + "." + configurationDocumentCacheSizeKeyConstant:   defaults.DocumentCacheSize,
	}
}

// Sanitize trims configured values, expands home shortcuts, and restores defaults for unusable values.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.FeedConfiguration = pruneConfigurationPathResolver.Expand(configuration.FeedConfiguration)
	if len(sanitized.FeedConfiguration) == 0 {
		sanitized.FeedConfiguration = defaults.FeedConfiguration
	}
	sanitized.ReportPath = pruneConfigurationPathResolver.Expand(configuration.ReportPath)
	sanitized.UnknownDependencies = strings.ToLower(strings.TrimSpace(configuration.UnknownDependencies))
	if len(sanitized.UnknownDependencies) == 0 {
		sanitized.UnknownDependencies = defaults.UnknownDependencies
	}
	if sanitized.RequestTimeout <= 0 {
		sanitized.RequestTimeout = defaults.RequestTimeout
	}
	if sanitized.DocumentCacheSize <= 0 {
		sanitized.DocumentCacheSize = defaults.DocumentCacheSize
	}

	return sanitized
}
