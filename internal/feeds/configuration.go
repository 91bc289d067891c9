package feeds

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/filesystem"
)

const (
	// DefaultConfigurationFileNameConstant names the feed configuration expected beside a solution.
	DefaultConfigurationFileNameConstant = "nuget.config"
	// DefaultSourceURLConstant is queried when no feed configuration exists.
	DefaultSourceURLConstant = "https://api.nuget.org/v3/index.json"
	// DefaultSourceKeyConstant identifies the default source.
	DefaultSourceKeyConstant = "nuget.org"

	addElementNameConstant                  = "add"
	clearElementNameConstant                = "clear"
	usernameCredentialKeyConstant           = "Username"
	clearTextPasswordCredentialKeyConstant  = "ClearTextPassword"
	passwordCredentialKeyConstant           = "Password"
	disabledValueConstant                   = "true"
	spaceConstant                           = " "
	encodedSpaceConstant                    = "_x0020_"
	configurationReadErrorTemplateConstant  = "unable to read feed configuration %s: %w"
	configurationParseErrorTemplateConstant = "unable to parse feed configuration %s: %w"
	sourceURLMissingTemplateConstant        = "package source %q has no value"
	overrideSecretErrorTemplateConstant     = "unable to resolve password for package source %q: %w"
	configurationMissingMessageConstant     = "feed configuration not found; using default source"
	sourcesLoadedMessageConstant            = "package sources loaded"
	sourceCredentialsMessageConstant        = "package source credentials configured"
	logFieldConfigurationPathConstant       = "feed_configuration"
	logFieldSourceCountConstant             = "source_count"
	logFieldSourceKeyConstant               = "source_key"
	logFieldSourceURLConstant               = "source_url"
)

// Source is one configured package feed.
type Source struct {
	Key      string
	URL      string
	Username string
	Password string
}

// HasCredentials reports whether requests to the source should authenticate.
func (source Source) HasCredentials() bool {
	return len(source.Username) > 0
}

// CredentialOverride replaces the credentials declared for a source in the feed configuration.
type CredentialOverride struct {
	Username       string `mapstructure:"username"`
	PasswordSource string `mapstructure:"password_source"`
}

// EncodeSourceKey converts a source key into the element name used by the credentials section.
func EncodeSourceKey(sourceKey string) string {
	return strings.ReplaceAll(sourceKey, spaceConstant, encodedSpaceConstant)
}

// LoaderDependencies supplies collaborators for Loader.
type LoaderDependencies struct {
	Logger            *zap.Logger
	FileSystem        filesystem.FileSystem
	EnvironmentLookup EnvironmentLookup
	SecretResolver    SecretResolver
}

// Loader reads package sources and their credentials.
type Loader struct {
	logger            *zap.Logger
	fileSystem        filesystem.FileSystem
	environmentLookup EnvironmentLookup
	secretResolver    SecretResolver
}

// NewLoader constructs a Loader, defaulting unset collaborators.
func NewLoader(dependencies LoaderDependencies) *Loader {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	secretResolver := dependencies.SecretResolver
	if secretResolver == nil {
		secretResolver = NewSecretResolver(dependencies.EnvironmentLookup, nil)
	}

	return &Loader{
		logger:            logger,
		fileSystem:        filesystem.Resolve(dependencies.FileSystem),
		environmentLookup: dependencies.EnvironmentLookup,
		secretResolver:    secretResolver,
	}
}

type configurationDocument struct {
	XMLName         xml.Name           `xml:"configuration"`
	PackageSources  sourcesSection     `xml:"packageSources"`
	Credentials     credentialsSection `xml:"packageSourceCredentials"`
	DisabledSources keyValueSection    `xml:"disabledPackageSources"`
}

type sourcesSection struct {
	Elements []keyValueElement `xml:",any"`
}

type credentialsSection struct {
	Sources []credentialElement `xml:",any"`
}

type keyValueSection struct {
	Elements []keyValueElement `xml:"add"`
}

type keyValueElement struct {
	XMLName xml.Name
	Key     string `xml:"key,attr"`
	Value   string `xml:"value,attr"`
}

type credentialElement struct {
	XMLName  xml.Name
	Elements []keyValueElement `xml:"add"`
}

// Load reads the feed configuration at configurationPath and returns its enabled sources in declaration order.
// When the file does not exist the default public source is returned. Overrides are keyed by source key.
func (loader *Loader) Load(loadContext context.Context, configurationPath string, overrides map[string]CredentialOverride) ([]Source, error) {
	contents, readError := loader.fileSystem.ReadFile(configurationPath)
	if readError != nil {
		if !errors.Is(readError, fs.ErrNotExist) {
			return nil, fmt.Errorf(configurationReadErrorTemplateConstant, configurationPath, readError)
		}
		loader.logger.Warn(configurationMissingMessageConstant, zap.String(logFieldConfigurationPathConstant, configurationPath))
		defaultSources := []Source{{Key: DefaultSourceKeyConstant, URL: DefaultSourceURLConstant}}
		return loader.applyOverrides(loadContext, defaultSources, overrides)
	}

	sources, parseError := loader.Parse(contents)
	if parseError != nil {
		return nil, fmt.Errorf(configurationParseErrorTemplateConstant, configurationPath, parseError)
	}

	resolvedSources, overrideError := loader.applyOverrides(loadContext, sources, overrides)
	if overrideError != nil {
		return nil, overrideError
	}

	loader.logger.Info(sourcesLoadedMessageConstant,
		zap.String(logFieldConfigurationPathConstant, configurationPath),
		zap.Int(logFieldSourceCountConstant, len(resolvedSources)),
	)

	return resolvedSources, nil
}

// Parse decodes feed configuration XML into sources with their declared credentials.
func (loader *Loader) Parse(contents []byte) ([]Source, error) {
	var document configurationDocument
	if unmarshalError := xml.Unmarshal(contents, &document); unmarshalError != nil {
		return nil, unmarshalError
	}

	disabledKeys := make(map[string]struct{})
	for _, disabledElement := range document.DisabledSources.Elements {
		if strings.EqualFold(strings.TrimSpace(disabledElement.Value), disabledValueConstant) {
			disabledKeys[strings.ToLower(disabledElement.Key)] = struct{}{}
		}
	}

	credentialsByElementName := make(map[string]credentialElement, len(document.Credentials.Sources))
	for _, credentials := range document.Credentials.Sources {
		credentialsByElementName[credentials.XMLName.Local] = credentials
	}

	var sources []Source
	for _, element := range document.PackageSources.Elements {
		switch element.XMLName.Local {
		case clearElementNameConstant:
			sources = nil
			continue
		case addElementNameConstant:
		default:
			continue
		}

		sourceKey := strings.TrimSpace(element.Key)
		if _, disabled := disabledKeys[strings.ToLower(sourceKey)]; disabled {
			continue
		}

		sourceURL := strings.TrimSpace(element.Value)
		if len(sourceURL) == 0 {
			return nil, fmt.Errorf(sourceURLMissingTemplateConstant, sourceKey)
		}

		source := Source{Key: sourceKey, URL: sourceURL}
		if credentials, found := credentialsByElementName[EncodeSourceKey(sourceKey)]; found {
			source = loader.applyDeclaredCredentials(source, credentials)
		}

		sources = upsertSource(sources, source)
	}

	return sources, nil
}

func (loader *Loader) applyDeclaredCredentials(source Source, credentials credentialElement) Source {
	for _, credentialEntry := range credentials.Elements {
		value := expandEnvironmentReferences(credentialEntry.Value, loader.environmentLookup)
		switch {
		case strings.EqualFold(credentialEntry.Key, usernameCredentialKeyConstant):
			source.Username = value
		case strings.EqualFold(credentialEntry.Key, clearTextPasswordCredentialKeyConstant),
			strings.EqualFold(credentialEntry.Key, passwordCredentialKeyConstant):
			source.Password = value
		}
	}
	return source
}

func (loader *Loader) applyOverrides(loadContext context.Context, sources []Source, overrides map[string]CredentialOverride) ([]Source, error) {
	resolvedSources := make([]Source, 0, len(sources))
	for _, source := range sources {
		override, found := lookupOverride(overrides, source.Key)
		if found {
			if trimmedUsername := strings.TrimSpace(override.Username); len(trimmedUsername) > 0 {
				source.Username = trimmedUsername
			}
			if len(strings.TrimSpace(override.PasswordSource)) > 0 {
				secretSource, parseError := ParseSecretSource(override.PasswordSource)
				if parseError != nil {
					return nil, fmt.Errorf(overrideSecretErrorTemplateConstant, source.Key, parseError)
				}
				password, resolveError := loader.secretResolver.ResolveSecret(loadContext, secretSource)
				if resolveError != nil {
					return nil, fmt.Errorf(overrideSecretErrorTemplateConstant, source.Key, resolveError)
				}
				source.Password = password
			}
		}

		if source.HasCredentials() {
			loader.logger.Debug(sourceCredentialsMessageConstant,
				zap.String(logFieldSourceKeyConstant, source.Key),
				zap.String(logFieldSourceURLConstant, source.URL),
			)
		}
		resolvedSources = append(resolvedSources, source)
	}
	return resolvedSources, nil
}

// upsertSource appends source, or replaces an earlier declaration with the same key in place.
func upsertSource(sources []Source, source Source) []Source {
	for sourceIndex, existingSource := range sources {
		if strings.EqualFold(existingSource.Key, source.Key) {
			sources[sourceIndex] = source
			return sources
		}
	}
	return append(sources, source)
}

func lookupOverride(overrides map[string]CredentialOverride, sourceKey string) (CredentialOverride, bool) {
	if override, found := overrides[sourceKey]; found {
		return override, true
	}
	for overrideKey, override := range overrides {
		if strings.EqualFold(overrideKey, sourceKey) {
			return override, true
		}
	}
	return CredentialOverride{}, false
}

// ConfigurationPath resolves the feed configuration location for a solution directory.
// Relative names are resolved against the solution directory.
func ConfigurationPath(solutionDirectory string, configuredPath string) string {
	trimmedPath := strings.TrimSpace(configuredPath)
	if len(trimmedPath) == 0 {
		trimmedPath = DefaultConfigurationFileNameConstant
	}
	if filepath.IsAbs(trimmedPath) {
		return filepath.Clean(trimmedPath)
	}
	return filepath.Join(solutionDirectory, trimmedPath)
}
