// Package utils holds the CLI plumbing shared by refprune commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// environment variables through Viper. LoggerFactory builds zap loggers for the
// supported levels and formats.
package utils
