package feeds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	secretSourceSeparatorConstant              = ":"
	environmentSecretSourceTypeValueConstant   = "env"
	fileSecretSourceTypeValueConstant          = "file"
	secretSourceMissingErrorMessageConstant    = "secret source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "secret file path must be provided"
	environmentLookupNilErrorMessageConstant   = "environment lookup function not configured"
	fileReaderNilErrorMessageConstant          = "file reader function not configured"
	environmentSecretMissingTemplateConstant   = "environment variable %s is not set"
	fileReadErrorTemplateConstant              = "unable to read secret file %s: %w"
	fileSecretEmptyErrorTemplateConstant       = "secret file %s is empty"
	unsupportedSecretSourceTemplateConstant    = "unsupported secret source type %q"
)

// SecretSourceType enumerates the supported secret retrieval mechanisms.
type SecretSourceType string

// Secret source type enumerations.
const (
	SecretSourceTypeEnvironment SecretSourceType = SecretSourceType(environmentSecretSourceTypeValueConstant)
	SecretSourceTypeFile        SecretSourceType = SecretSourceType(fileSecretSourceTypeValueConstant)
)

// SecretSourceConfiguration specifies how to locate a feed password or token.
type SecretSourceConfiguration struct {
	Type      SecretSourceType
	Reference string
}

// SecretResolver retrieves feed secrets from configured sources.
type SecretResolver interface {
	ResolveSecret(resolutionContext context.Context, source SecretSourceConfiguration) (string, error)
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// NewSecretResolver creates a secret resolver with optional dependency overrides.
func NewSecretResolver(environmentLookup EnvironmentLookup, fileReader FileReader) SecretResolver {
	resolvedEnvironmentLookup := environmentLookup
	if resolvedEnvironmentLookup == nil {
		resolvedEnvironmentLookup = os.LookupEnv
	}

	resolvedFileReader := fileReader
	if resolvedFileReader == nil {
		resolvedFileReader = os.ReadFile
	}

	return &secretResolver{
		environmentLookup: resolvedEnvironmentLookup,
		fileReader:        resolvedFileReader,
	}
}

// ParseSecretSource interprets textual secret source declarations such as env:NAME or file:/path.
// A value without a type prefix names an environment variable.
func ParseSecretSource(sourceValue string) (SecretSourceConfiguration, error) {
	trimmedValue := strings.TrimSpace(sourceValue)
	if len(trimmedValue) == 0 {
		return SecretSourceConfiguration{}, errors.New(secretSourceMissingErrorMessageConstant)
	}

	components := strings.SplitN(trimmedValue, secretSourceSeparatorConstant, 2)
	if len(components) == 1 {
		return SecretSourceConfiguration{
			Type:      SecretSourceTypeEnvironment,
			Reference: trimmedValue,
		}, nil
	}

	sourceType := strings.ToLower(strings.TrimSpace(components[0]))
	reference := strings.TrimSpace(components[1])

	switch sourceType {
	case environmentSecretSourceTypeValueConstant:
		if len(reference) == 0 {
			return SecretSourceConfiguration{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
		return SecretSourceConfiguration{Type: SecretSourceTypeEnvironment, Reference: reference}, nil
	case fileSecretSourceTypeValueConstant:
		if len(reference) == 0 {
			return SecretSourceConfiguration{}, errors.New(filePathMissingErrorMessageConstant)
		}
		return SecretSourceConfiguration{Type: SecretSourceTypeFile, Reference: reference}, nil
	default:
		return SecretSourceConfiguration{}, fmt.Errorf(unsupportedSecretSourceTemplateConstant, sourceType)
	}
}

type secretResolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
}

func (resolver *secretResolver) ResolveSecret(resolutionContext context.Context, source SecretSourceConfiguration) (string, error) {
	_ = resolutionContext
	switch source.Type {
	case SecretSourceTypeEnvironment:
		if resolver.environmentLookup == nil {
			return "", errors.New(environmentLookupNilErrorMessageConstant)
		}
		value, found := resolver.environmentLookup(source.Reference)
		if !found {
			return "", fmt.Errorf(environmentSecretMissingTemplateConstant, source.Reference)
		}
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) == 0 {
			return "", fmt.Errorf(environmentSecretMissingTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	case SecretSourceTypeFile:
		if resolver.fileReader == nil {
			return "", errors.New(fileReaderNilErrorMessageConstant)
		}
		contents, readError := resolver.fileReader(source.Reference)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, source.Reference, readError)
		}
		trimmedValue := strings.TrimSpace(string(contents))
		if len(trimmedValue) == 0 {
			return "", fmt.Errorf(fileSecretEmptyErrorTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	default:
		return "", fmt.Errorf(unsupportedSecretSourceTemplateConstant, source.Type)
	}
}
