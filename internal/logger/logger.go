package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	// Extra receives a JSON copy of every entry, e.g. a log file.
	Extra io.Writer
}

// Logger wraps zerolog with key/value helpers used across reportcheck.
type Logger struct {
	base zerolog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var output io.Writer = writer
	if opts.HumanReadable {
		console := zerolog.NewConsoleWriter()
		console.Out = writer
		console.TimeFormat = time.RFC3339
		output = console
	}
	if opts.Extra != nil {
		output = zerolog.MultiLevelWriter(output, opts.Extra)
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{base: logger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// WithFields returns a derived logger that always writes the supplied fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}

	builder := l.base.With()
	for key, value := range fields {
		builder = builder.Interface(key, value)
	}

	derived := Logger{base: builder.Logger()}
	return &derived
}

// With returns a derived logger carrying a single extra field.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	derived := Logger{base: l.base.With().Interface(key, value).Logger()}
	return &derived
}

// Info writes an informational entry with optional key/value pairs.
func (l *Logger) Info(msg string, kv ...any) {
	if l == nil {
		return
	}
	withPairs(l.base.Info(), kv).Msg(msg)
}

// Debug writes a debug-level entry if enabled.
func (l *Logger) Debug(msg string, kv ...any) {
	if l == nil {
		return
	}
	withPairs(l.base.Debug(), kv).Msg(msg)
}

// Warn writes a warning entry.
func (l *Logger) Warn(msg string, kv ...any) {
	if l == nil {
		return
	}
	withPairs(l.base.Warn(), kv).Msg(msg)
}

// Error writes an error entry including the full cause chain of err.
func (l *Logger) Error(err error, msg string, kv ...any) {
	if l == nil {
		return
	}
	event := l.base.Error()
	if err != nil {
		event = event.Err(err)
	}
	withPairs(event, kv).Msg(msg)
}

func withPairs(event *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case time.Duration:
			event = event.Dur(key, v)
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	if len(kv)%2 == 1 {
		event = event.Interface("extra", kv[len(kv)-1])
	}
	return event
}
