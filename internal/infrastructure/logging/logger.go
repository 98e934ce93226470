package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ocfu/espconsole/internal/infrastructure/config"
)

// LevelTrace is the extended debug level rendered as [X].
const LevelTrace = slog.LevelDebug - 4

// Logger wraps slog.Logger with console-runtime functionality.
//
// It provides structured logging with default fields, a runtime-adjustable
// level and optional extra sinks (for example an MQTT log topic).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	sinks *sinkSet
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (console prefixes, text or JSON)
//   - Log level filtering
//   - Default fields (version) for the structured formats
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration from the YAML config
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return NewWithWriter(output, cfg, version)
}

// NewWithWriter is New with an explicit destination, used for the console
// stream and in tests.
func NewWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts).WithAttrs([]slog.Attr{
			slog.String("service", "espconsole"),
			slog.String("version", version),
		})
	case "text":
		handler = slog.NewTextHandler(output, opts).WithAttrs([]slog.Attr{
			slog.String("service", "espconsole"),
			slog.String("version", version),
		})
	default:
		handler = NewConsoleHandler(output, level)
	}

	sinks := &sinkSet{}
	return &Logger{
		Logger: slog.New(&fanoutHandler{primary: handler, sinks: sinks}),
		level:  level,
		sinks:  sinks,
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: trace, debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "x":
		return LevelTrace
	case "debug", "d":
		return slog.LevelDebug
	case "warn", "warning", "w":
		return slog.LevelWarn
	case "error", "e":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether name is a level parseLevel understands.
func ValidLevel(name string) bool {
	switch strings.ToLower(name) {
	case "trace", "x", "debug", "d", "info", "i", "warn", "warning", "w", "error", "e":
		return true
	}
	return false
}

// LevelName returns the lower-case name of a level.
func LevelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "trace"
	case l <= slog.LevelDebug:
		return "debug"
	case l <= slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// SetLevel changes the level of the primary handler at runtime.
// Unknown names fall back to info.
func (l *Logger) SetLevel(name string) {
	if l.level != nil {
		l.level.Set(parseLevel(name))
	}
}

// Level returns the current level of the primary handler.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// AddSink attaches an extra destination with its own level filter.
// A sink with the same name is replaced.
//
// Parameters:
//   - name: Sink identifier used by RemoveSink
//   - w: Destination; each record is written as one console-formatted line
//   - level: Minimum level forwarded to this sink
func (l *Logger) AddSink(name string, w io.Writer, level string) {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	l.sinks.add(name, NewConsoleHandler(w, lv))
}

// RemoveSink detaches a sink added with AddSink.
func (l *Logger) RemoveSink(name string) {
	l.sinks.remove(name)
}

// With returns a new Logger with additional default attributes.
//
// Parameters:
//   - args: Key-value pairs to add as default attributes
//
// Returns:
//   - *Logger: New logger with added attributes
//
// Example:
//
//	gpioLogger := logger.With("component", "gpio")
//	gpioLogger.Info("device added") // Includes component=gpio
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
		sinks:  l.sinks,
	}
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger writes console-formatted lines to stdout at info level.
// It should only be used during early startup before config is available.
//
// Returns:
//   - *Logger: Default logger
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}
