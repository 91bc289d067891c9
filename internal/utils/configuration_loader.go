package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorOldConstant              = "."
	environmentKeySeparatorNewConstant              = "_"
	searchPathEnvironmentSuffixConstant             = "_CONFIG_SEARCH_PATH"
	listSeparatorConstant                           = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
)

// ConfigurationLoader layers embedded defaults, configuration files, and environment variables through Viper.
// Precedence from lowest to highest: default values, embedded configuration, discovered or explicit file, environment.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration surfaces which layers contributed to the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed        string
	EmbeddedConfiguration bool
	SearchPaths           []string
}

// NewConfigurationLoader creates a loader that searches known paths and respects an environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration stores configuration data merged beneath user-provided configuration files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}

	loader.embeddedConfiguration = append([]byte(nil), configurationData...)
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
}

// LoadConfiguration populates targetConfiguration from every configured layer.
// A missing configuration file in the search paths is not an error; a missing explicit file is.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	embeddedApplied, embeddedError := loader.mergeEmbeddedConfiguration(viperInstance)
	if embeddedError != nil {
		return LoadedConfiguration{}, embeddedError
	}

	searchPaths := loader.resolveSearchPaths()
	viperInstance.SetConfigType(loader.configurationType)
	for _, searchPath := range searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}
	if explicitPath := strings.TrimSpace(configurationFilePath); len(explicitPath) > 0 {
		viperInstance.SetConfigFile(explicitPath)
		if extension := strings.TrimPrefix(filepath.Ext(explicitPath), "."); len(extension) > 0 {
			viperInstance.SetConfigType(extension)
		}
	}

	readError := viperInstance.MergeInConfig()
	var notFoundError viper.ConfigFileNotFoundError
	if readError != nil && !errors.As(readError, &notFoundError) {
		return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant))
	viperInstance.AutomaticEnv()

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if unmarshalError := viperInstance.Unmarshal(targetConfiguration, decodeHook); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{
		ConfigFileUsed:        viperInstance.ConfigFileUsed(),
		EmbeddedConfiguration: embeddedApplied,
		SearchPaths:           searchPaths,
	}, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedConfiguration(viperInstance *viper.Viper) (bool, error) {
	if len(loader.embeddedConfiguration) == 0 {
		return false, nil
	}

	configurationType := loader.configurationType
	if len(loader.embeddedConfigurationType) > 0 {
		configurationType = loader.embeddedConfigurationType
	}
	viperInstance.SetConfigType(configurationType)

	if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
		return false, fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
	}
	return true, nil
}

// resolveSearchPaths places directories listed in <PREFIX>_CONFIG_SEARCH_PATH ahead of the built-in search paths.
func (loader *ConfigurationLoader) resolveSearchPaths() []string {
	searchPaths := make([]string, 0, len(loader.searchPaths))
	if len(loader.environmentPrefix) > 0 {
		overrideValue := os.Getenv(strings.ToUpper(loader.environmentPrefix) + searchPathEnvironmentSuffixConstant)
		for _, overridePath := range filepath.SplitList(overrideValue) {
			if trimmedPath := strings.TrimSpace(overridePath); len(trimmedPath) > 0 {
				searchPaths = append(searchPaths, trimmedPath)
			}
		}
	}
	return append(searchPaths, loader.searchPaths...)
}
