// Package log provides the process-wide zerolog logger shared by the
// server and agent binaries (cmd/ank does not use it).
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once by Init.
var Logger zerolog.Logger

// Level names accepted by Config.Level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration read from CLI flags or environment.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call once at process
// startup; subsequent calls replace Logger, which is convenient for tests
// that want to capture output.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the owning subsystem,
// e.g. "server", "agent", "controlloop".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithAgentName creates a child logger tagged with an agent name.
func WithAgentName(agentName string) zerolog.Logger {
	return Logger.With().Str("agent", agentName).Logger()
}

// WithWorkloadName creates a child logger tagged with a workload name.
func WithWorkloadName(workloadName string) zerolog.Logger {
	return Logger.With().Str("workload", workloadName).Logger()
}

// WithInstance creates a child logger tagged with a full workload instance
// identity (agent, workload, config hash).
func WithInstance(instance string) zerolog.Logger {
	return Logger.With().Str("instance", instance).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
