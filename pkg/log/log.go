package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. It writes JSON to stdout until Init runs.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Level is a configured log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// Version is stamped on every line when set
	Version string
}

// ParseLevel converts a config string to a Level, defaulting to info
func ParseLevel(s string) Level {
	if _, ok := zerologLevels[Level(s)]; ok {
		return Level(s)
	}
	return InfoLevel
}

// Init replaces the root logger according to cfg
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).With().Timestamp().Str("service", "cleandoc")
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	Logger = ctx.Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTenant creates a child logger with tenant_id field
func WithTenant(logger zerolog.Logger, tenantID string) zerolog.Logger {
	return logger.With().Str("tenant_id", tenantID).Logger()
}

// WithExport creates a child logger scoped to one export run
func WithExport(logger zerolog.Logger, tenantID, reportDate string) zerolog.Logger {
	return logger.With().
		Str("tenant_id", tenantID).
		Str("report_date", reportDate).
		Logger()
}

// WithRequestID creates a child logger with request_id field
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// Nop returns a disabled logger, used by tests
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
