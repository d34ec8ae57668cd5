package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel LogLevel
	base         zerolog.Logger
	initOnce     sync.Once
)

// Options configures the package logger.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // console or json
	Output io.Writer // defaults to stderr
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initFromEnv configures the logger from environment variables the first
// time it is used, unless Configure already ran.
func initFromEnv() {
	initOnce.Do(func() {
		level := os.Getenv("LOG_LEVEL")
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				level = "debug"
			}
		}
		apply(Options{Level: level, Format: os.Getenv("LOG_FORMAT")})
	})
}

// Configure replaces the package logger. It may be called more than once,
// e.g. after the config file has been read.
func Configure(opts Options) {
	initOnce.Do(func() {})
	apply(opts)
}

func apply(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(opts.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	defer mu.Unlock()
	currentLevel = ParseLevel(opts.Level)
	base = zerolog.New(out).With().Timestamp().Logger().Level(currentLevel.zerolog())
}

// SetLevel changes the active level without touching the output.
func SetLevel(l LogLevel) {
	initFromEnv()
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
	base = base.Level(l.zerolog())
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initFromEnv()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Logger returns the underlying zerolog logger for structured events.
func Logger() zerolog.Logger {
	initFromEnv()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// Fields is a logger carrying a fixed set of key/value pairs.
type Fields struct {
	logger zerolog.Logger
}

// With returns a logger that attaches key=value to every message.
func With(key string, value interface{}) Fields {
	return Fields{logger: Logger().With().Interface(key, value).Logger()}
}

// With adds another key/value pair.
func (f Fields) With(key string, value interface{}) Fields {
	return Fields{logger: f.logger.With().Interface(key, value).Logger()}
}

func (f Fields) Debug(format string, args ...interface{}) { f.logger.Debug().Msgf(format, args...) }
func (f Fields) Info(format string, args ...interface{})  { f.logger.Info().Msgf(format, args...) }
func (f Fields) Warn(format string, args ...interface{})  { f.logger.Warn().Msgf(format, args...) }
func (f Fields) Error(format string, args ...interface{}) { f.logger.Error().Msgf(format, args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
