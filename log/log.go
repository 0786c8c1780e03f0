package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with module scoping helpers.
type Logger struct {
	zerolog.Logger
}

// New builds the root logger. Unknown levels fall back to info.
func New(level string, pretty bool) *Logger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter builds a root logger writing to w.
func NewWithWriter(w io.Writer, level string, pretty bool) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: l}
}

// Module returns a child logger tagged with the module name.
func (l *Logger) Module(name string) zerolog.Logger {
	return l.With().Str("module", name).Logger()
}
