// Package logger provides structured logging for QueryLens
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with QueryLens-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger
	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "querylens").
		Logger()

	// Add caller information if requested
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// Component returns a logger scoped to one component (profiler, analyzer,
// metacache, advisor)
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", name).
			Logger(),
	}
}

// RunLogger returns a logger scoped to one analysis run
func (l *Logger) RunLogger(runID string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("run_id", runID).
			Logger(),
	}
}

// LogProfileExtraction logs a profiling-store read with structured fields
func (l *Logger) LogProfileExtraction(database string, records int, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "profiler").
		Str("database", database).
		Int("records", records).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "profiler").
			Str("database", database).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Slow query extraction completed")
}

// LogMetadataFetch logs a per-collection metadata fetch
func (l *Logger) LogMetadataFetch(collection string, fields int, indexes int, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "metacache").
		Str("collection", collection).
		Int("schema_fields", fields).
		Int("indexes", indexes).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "metacache").
			Str("collection", collection).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Metadata fetch completed")
}

// LogAnalysisRun logs the outcome of one analysis run
func (l *Logger) LogAnalysisRun(runID string, records, skipped, groups int, duration time.Duration) {
	l.zlog.Info().
		Str("event", "run_complete").
		Str("run_id", runID).
		Int("records", records).
		Int("skipped", skipped).
		Int("groups", groups).
		Dur("duration_ms", duration).
		Msg("Analysis run completed")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
