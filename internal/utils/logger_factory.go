package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	jsonZapEncodingStringConstant        = "json"
	consoleZapEncodingStringConstant     = "console"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
	loggerBuildErrorTemplateConstant     = "unable to build logger: %w"
	standardErrorOutputConstant          = "stderr"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Exported log level constants for reuse across packages.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Exported log format constants for reuse across packages.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct{}

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

var logFormatEncodingMapping = map[LogFormat]string{
	LogFormatStructured: jsonZapEncodingStringConstant,
	LogFormatConsole:    consoleZapEncodingStringConstant,
}

// NewLoggerFactory constructs a new logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// ParseLogLevel normalizes a configured level name and reports whether it is supported.
func ParseLogLevel(configuredValue string) (LogLevel, bool) {
	candidate := LogLevel(strings.ToLower(strings.TrimSpace(configuredValue)))
	_, supported := logLevelMapping[candidate]
	return candidate, supported
}

// ParseLogFormat normalizes a configured format name and reports whether it is supported.
func ParseLogFormat(configuredValue string) (LogFormat, bool) {
	candidate := LogFormat(strings.ToLower(strings.TrimSpace(configuredValue)))
	_, supported := logFormatEncodingMapping[candidate]
	return candidate, supported
}

// CreateLogger produces a zap.Logger writing to standard error with the requested level and format.
// Console output keeps timestamps readable and omits stack traces below the error level.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	zapLogLevel, levelExists := logLevelMapping[requestedLogLevel]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}

	encoding, formatExists := logFormatEncodingMapping[requestedLogFormat]
	if !formatExists {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat)
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLogLevel)
	configuration.Encoding = encoding
	configuration.Sampling = nil
	configuration.OutputPaths = []string{standardErrorOutputConstant}
	configuration.ErrorOutputPaths = []string{standardErrorOutputConstant}
	if requestedLogFormat == LogFormatConsole {
		configuration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		configuration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		configuration.EncoderConfig.CallerKey = zapcore.OmitKey
	}

	logger, buildError := configuration.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if buildError != nil {
		return nil, fmt.Errorf(loggerBuildErrorTemplateConstant, buildError)
	}

	return logger, nil
}
