package prune

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/analysis"
	"github.com/temirov/refprune/internal/feeds"
)

const (
	commandUseConstant                         = "refprune [flags] <solution.sln>"
	commandShortDescriptionConstant            = "Remove redundant project and package references"
	commandLongDescriptionConstant             = "refprune reads a solution, resolves package metadata from the configured NuGet feeds, and deletes every project or package reference that a sibling reference of the same project already supplies."
	solutionArgumentMissingMessageConstant     = "exactly one solution file must be provided"
	commandExecutionErrorTemplateConstant      = "pruning failed: %w"
	unknownDependenciesErrorTemplateConstant   = "invalid unknown dependency policy: %w"
	dryRunFlagNameConstant                     = "dry-run"
	dryRunFlagDescriptionConstant              = "Report redundant references without modifying project files"
	feedConfigurationFlagNameConstant          = "feed-config"
	feedConfigurationFlagDescriptionConstant   = "Feed configuration file, relative to the solution directory unless absolute"
	reportFlagNameConstant                     = "report"
	reportFlagDescriptionConstant              = "Write a YAML report of the removals to this path"
	unknownDependenciesFlagNameConstant        = "unknown-dependencies"
	unknownDependenciesFlagDescriptionConstant = "Handling of packages without dependency data: keep or abort"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current pruning configuration.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the pruning command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	EnvironmentLookup     feeds.EnvironmentLookup
	HTTPClient            *http.Client
}

// Build constructs the pruning command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          builder.run,
	}

	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagDescriptionConstant)
	command.Flags().String(feedConfigurationFlagNameConstant, "", feedConfigurationFlagDescriptionConstant)
	command.Flags().String(reportFlagNameConstant, "", reportFlagDescriptionConstant)
	command.Flags().String(unknownDependenciesFlagNameConstant, "", unknownDependenciesFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New(solutionArgumentMissingMessageConstant)
	}

	options, optionsError := builder.parseOptions(command, arguments[0])
	if optionsError != nil {
		return optionsError
	}

	service := NewService(ServiceDependencies{
		Logger:            builder.resolveLogger(),
		Reporter:          NewWriterReporter(command.OutOrStdout()),
		EnvironmentLookup: builder.EnvironmentLookup,
		HTTPClient:        builder.HTTPClient,
	})

	if _, executionError := service.Execute(command.Context(), options); executionError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, executionError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, solutionPath string) (Options, error) {
	configuration := builder.resolveConfiguration()

	dryRunValue := configuration.DryRun
	if command.Flags().Changed(dryRunFlagNameConstant) {
		flagDryRunValue, dryRunFlagError := command.Flags().GetBool(dryRunFlagNameConstant)
		if dryRunFlagError != nil {
			return Options{}, dryRunFlagError
		}
		dryRunValue = flagDryRunValue
	}

	feedConfigurationFlagValue, feedConfigurationFlagError := command.Flags().GetString(feedConfigurationFlagNameConstant)
	if feedConfigurationFlagError != nil {
		return Options{}, feedConfigurationFlagError
	}

	reportFlagValue, reportFlagError := command.Flags().GetString(reportFlagNameConstant)
	if reportFlagError != nil {
		return Options{}, reportFlagError
	}

	unknownDependenciesFlagValue, unknownDependenciesFlagError := command.Flags().GetString(unknownDependenciesFlagNameConstant)
	if unknownDependenciesFlagError != nil {
		return Options{}, unknownDependenciesFlagError
	}
	policy, policyError := analysis.ParseUnknownPolicy(selectStringValue(unknownDependenciesFlagValue, configuration.UnknownDependencies))
	if policyError != nil {
		return Options{}, fmt.Errorf(unknownDependenciesErrorTemplateConstant, policyError)
	}

	return Options{
		SolutionPath:        solutionPath,
		DryRun:              dryRunValue,
		FeedConfiguration:   selectStringValue(feedConfigurationFlagValue, configuration.FeedConfiguration),
		ReportPath:          selectStringValue(reportFlagValue, configuration.ReportPath),
		UnknownDependencies: policy,
		RequestTimeout:      configuration.RequestTimeout,
		DocumentCacheSize:   configuration.DocumentCacheSize,
		Credentials:         configuration.Credentials,
	}, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	return configuration.Sanitize()
}

func selectStringValue(flagValue string, configurationValue string) string {
	trimmedFlagValue := strings.TrimSpace(flagValue)
	if len(trimmedFlagValue) > 0 {
		return trimmedFlagValue
	}
	return strings.TrimSpace(configurationValue)
}
