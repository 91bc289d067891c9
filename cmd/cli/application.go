package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/prune"
	"github.com/temirov/refprune/internal/utils"
)

const (
	applicationNameConstant                 = "refprune"
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	pruneConfigurationKeyConstant           = "prune"
	environmentPrefixConstant               = "REFPRUNE"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	commandBuildErrorTemplateConstant       = "unable to build command: %w"
	rootCommandDebugMessageConstant         = "refprune CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentsConstant               = "arguments"
	defaultConfigurationSearchPathConstant  = "."
	usageMessageConstant                    = "Specify solution file"
	usageErrorTemplateConstant              = "expected exactly one solution file argument, received %d"
	versionTemplateConstant                 = "{{.Name}} version: {{.Version}}\n"
	developmentVersionConstant              = "dev"
)

// UsageError reports a command line that does not name exactly one solution file.
type UsageError struct {
	ArgumentCount int
}

func (usageError UsageError) Error() string {
	return fmt.Sprintf(usageErrorTemplateConstant, usageError.ArgumentCount)
}

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Prune  prune.Configuration            `mapstructure:"prune"`
}

// ApplicationCommonConfiguration stores logging configuration.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
	versionResolver       func(context.Context) string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
		versionResolver:     resolveBuildVersion,
	}

	pruneBuilder := prune.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() prune.Configuration {
			return application.configuration.Prune
		},
	}
	cobraCommand, buildError := pruneBuilder.Build()
	if buildError != nil {
		cobraCommand = &cobra.Command{
			Use:           applicationNameConstant,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(*cobra.Command, []string) error {
				return fmt.Errorf(commandBuildErrorTemplateConstant, buildError)
			},
		}
	}

	pruneRun := cobraCommand.RunE
	cobraCommand.Args = validateArguments
	cobraCommand.PersistentPreRunE = func(command *cobra.Command, arguments []string) error {
		return application.initializeConfiguration(command)
	}
	cobraCommand.RunE = func(command *cobra.Command, arguments []string) error {
		application.logger.Debug(
			rootCommandDebugMessageConstant,
			zap.String(logFieldCommandNameConstant, command.Name()),
			zap.Strings(logFieldArgumentsConstant, arguments),
		)
		return pruneRun(command, arguments)
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.SetVersionTemplate(versionTemplateConstant)
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the root command and ensures logger flushing.
func (application *Application) Execute() error {
	application.rootCommand.Version = application.versionResolver(application.rootCommand.Context())
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command.
func Execute() error {
	return NewApplication().Execute()
}

// validateArguments prints the usage line to standard output when the argument count is wrong.
func validateArguments(command *cobra.Command, arguments []string) error {
	if len(arguments) == 1 {
		return nil
	}
	fmt.Fprintln(command.OutOrStdout(), usageMessageConstant)
	fmt.Fprint(command.OutOrStdout(), command.UsageString())
	return UsageError{ArgumentCount: len(arguments)}
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for configurationKey, configurationValue := range prune.DefaultConfigurationValues(pruneConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logLevel, _ := utils.ParseLogLevel(application.configuration.Common.LogLevel)
	logFormat, _ := utils.ParseLogFormat(application.configuration.Common.LogFormat)
	logger, loggerCreationError := application.loggerFactory.CreateLogger(logLevel, logFormat)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, applicationNameConstant))
	}
	return searchPaths
}

func resolveBuildVersion(context.Context) string {
	buildInfo, available := debug.ReadBuildInfo()
	if !available {
		return developmentVersionConstant
	}
	moduleVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(moduleVersion) == 0 || moduleVersion == "(devel)" {
		return developmentVersionConstant
	}
	return moduleVersion
}
