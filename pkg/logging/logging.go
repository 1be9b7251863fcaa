// Package logging provides structured logging for zstack-ovn-neutron.
//
// This package wraps the zap logger with the logr interface, which is also
// what libovsdb accepts for its own client logging. It supports:
// - JSON and console output formats
// - Dynamic log level adjustment
// - Context-carried loggers with per-entity key-value pairs
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.Options{
//	    Level:  "info",
//	    Format: "json",
//	})
//	logger.Info("Created logical switch", "network", netID)
//	logger.Error(err, "Failed to commit port ACLs", "port", portID)
package logging

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log level constants
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log format constants
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options contains configuration options for the logger
type Options struct {
	// Level is the log level: debug, info, warn, error
	// Default: info
	Level string

	// Format is the log format: json or console
	// Default: json
	Format string

	// OutputPath is the output file path
	// If empty, logs to stderr so that CLI output on stdout stays clean
	OutputPath string

	// Development enables development mode with more verbose output
	Development bool

	// AddCaller adds caller information to log entries
	AddCaller bool
}

// DefaultOptions returns default logging options
func DefaultOptions() Options {
	return Options{
		Level:     LevelInfo,
		Format:    FormatJSON,
		AddCaller: true,
	}
}

// Logger wraps a zap logger with dynamic level support
type Logger struct {
	zapLogger   *zap.Logger
	atomicLevel zap.AtomicLevel
	logr        logr.Logger
}

var (
	globalLogger  atomic.Value
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// NewLogger creates a new logger with the given options
//
// Parameters:
//   - opts: Logger configuration options
//
// Returns:
//   - *Logger: Configured logger instance
//   - error: Unknown level or unwritable output path
func NewLogger(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch opts.Format {
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case FormatJSON, "":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	output := zapcore.AddSync(os.Stderr)
	if opts.OutputPath != "" {
		file, err := os.OpenFile(opts.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		output = zapcore.AddSync(file)
	}

	zapOpts := []zap.Option{}
	if opts.AddCaller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	if opts.Development {
		zapOpts = append(zapOpts, zap.Development())
	}

	zapLogger := zap.New(zapcore.NewCore(encoder, output, atomicLevel), zapOpts...)
	return &Logger{
		zapLogger:   zapLogger,
		atomicLevel: atomicLevel,
		logr:        zapr.NewLogger(zapLogger),
	}, nil
}

// NewNopLogger returns a logger that discards everything; used by tests
func NewNopLogger() *Logger {
	return &Logger{
		zapLogger:   zap.NewNop(),
		atomicLevel: zap.NewAtomicLevelAt(zapcore.InfoLevel),
		logr:        logr.Discard(),
	}
}

// ParseLevel parses a string log level; empty means info
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelInfo, "":
		return zapcore.InfoLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel dynamically changes the log level
func (l *Logger) SetLevel(level string) error {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.atomicLevel.SetLevel(zapLevel)
	return nil
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() string {
	return l.atomicLevel.Level().String()
}

// Logger returns the logr.Logger view of this logger
func (l *Logger) Logger() logr.Logger {
	return l.logr
}

// WithName returns a new logger with the given name
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		zapLogger:   l.zapLogger.Named(name),
		atomicLevel: l.atomicLevel,
		logr:        l.logr.WithName(name),
	}
}

// WithValues returns a new logger with the given key-value pairs
func (l *Logger) WithValues(keysAndValues ...interface{}) *Logger {
	return &Logger{
		zapLogger:   l.zapLogger.With(toZapFields(keysAndValues)...),
		atomicLevel: l.atomicLevel,
		logr:        l.logr.WithValues(keysAndValues...),
	}
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logr.V(1).Info(msg, keysAndValues...)
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logr.Info(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	// logr has no warn level
	l.zapLogger.Warn(msg, toZapFields(keysAndValues)...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logr.Error(err, msg, keysAndValues...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

func toZapFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}

// SetGlobalLogger replaces the process-wide logger
func SetGlobalLogger(l *Logger) {
	globalLogger.Store(l)
}

// GetGlobalLogger returns the process-wide logger, or a default json/info
// logger if none was set
func GetGlobalLogger() *Logger {
	if l := globalLogger.Load(); l != nil {
		return l.(*Logger)
	}
	defaultOnce.Do(func() {
		logger, err := NewLogger(DefaultOptions())
		if err != nil {
			logger = NewNopLogger()
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// L is a shorthand for GetGlobalLogger()
func L() *Logger {
	return GetGlobalLogger()
}
