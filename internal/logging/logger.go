// Package logging configures the zerolog logger shared by every
// shmcomm binary and the grounding for panic recovery in long-running
// bridge goroutines.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects the logger's output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures a logger.
type Config struct {
	Level  zerolog.Level
	Format Format
}

// New builds a structured logger with timestamp and caller fields.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(cfg.Level)

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "shmcomm").
		Logger()
}

// ParseLevel maps a config string to a zerolog.Level, defaulting to Info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// LogError logs an error with context fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// LogErrorWithStack logs an error together with the current stack trace.
func LogErrorWithStack(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err).Str("stack_trace", string(debug.Stack()))
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic is a defer-block helper for goroutines that must not
// take the process down: it logs the panic at Error level and lets
// execution continue. Use in every long-running bridge goroutine.
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}

// InitGlobal installs cfg as the package-level zerolog.log.Logger, for
// call sites that use the global logger instead of threading one
// through.
func InitGlobal(cfg Config) {
	log.Logger = New(cfg)
}
