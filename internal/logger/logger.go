// Package logger builds the zerolog loggers handed to the model layer and
// the storage backends.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error, disabled
	Pretty bool   // console output for terminals
	Output io.Writer
}

// DefaultLevel applies when Config.Level is empty.
const DefaultLevel = "warn"

// New creates a logger writing to cfg.Output, stderr by default.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "docmodel").
		Logger(), nil
}

// ParseLevel maps a level name to a zerolog level. Names are case-insensitive.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		name = DefaultLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Component returns log tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
