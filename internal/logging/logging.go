// Package logging builds the zerolog logger shared by every component.
// Records go to a rotated file so the terminal UI stays clean; debug mode
// mirrors them to stderr.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog for application logging.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// Config holds logger configuration.
type Config struct {
	Level   string
	Path    string    // log file; empty disables the file
	Console io.Writer // also write human-readable records here when set

	MaxSizeMB  int // default 5
	MaxBackups int // default 3
	MaxAgeDays int // default 14
}

// New creates a logger. A log file that cannot be created is skipped.
func New(cfg Config) *Logger {
	var writers []io.Writer
	var rotator *lumberjack.Logger

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err == nil {
			rotator = &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    orDefault(cfg.MaxSizeMB, 5),
				MaxBackups: orDefault(cfg.MaxBackups, 3),
				MaxAge:     orDefault(cfg.MaxAgeDays, 14),
				Compress:   true,
				LocalTime:  true,
			}
			writers = append(writers, rotator)
		}
	}
	if cfg.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cfg.Console,
			TimeFormat: time.Kitchen,
		})
	}

	var output io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		output = writers[0]
	default:
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: logger, rotator: rotator}
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// WithComponent returns a logger tagged with component.
func (l *Logger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
