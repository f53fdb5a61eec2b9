// Package logging provides simple leveled logging for the page cache
// server, shared by the bootstrap listener, completion poller, and
// dispatcher.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Format is "text" (key=value) or "json". Empty means "text".
	Format string
	Output io.Writer
	// Sync flushes Output after every call, when Output supports it.
	// Tests that read Output immediately after logging should set this.
	Sync bool
	// NoColor is reserved for terminal-aware colorized level names;
	// the text formatter here never colorizes, so this currently only
	// documents intent for callers migrating from a colorized logger.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

type sink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	sync   bool
}

// Logger is a leveled logger that can accumulate structured context via
// With* methods. Children created from With* share the underlying sink
// (and therefore its mutex and output) with their parent.
type Logger struct {
	sink   *sink
	level  LogLevel
	fields []any
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// NewLogger creates a new logger from config, defaulting to
// DefaultConfig() when config is nil.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		sink:  &sink{w: output, format: format, sync: config.Sync},
		level: config.Level,
	}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

func (l *Logger) with(kv ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{sink: l.sink, level: l.level, fields: fields}
}

// WithNode returns a child logger that tags every entry with the peer
// node id a connection was assigned during bootstrap.
func (l *Logger) WithNode(nodeID uint8) *Logger {
	return l.with("node_id", nodeID)
}

// WithPid returns a child logger that tags every entry with the client
// process id a metadata slot belongs to.
func (l *Logger) WithPid(pid uint8) *Logger {
	return l.with("pid", pid)
}

// WithRequest returns a child logger that tags every entry with a
// request's immediate-derived tag and protocol operation name.
func (l *Logger) WithRequest(tag uint64, op string) *Logger {
	return l.with("tag", tag, "op", op)
}

// WithError returns a child logger that tags every entry with err.
func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err)
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i+1 < len(args); i += 2 {
		if result != "" {
			result += " "
		}
		result += fmt.Sprintf("%v=%v", args[i], args[i+1])
	}
	if result == "" {
		return ""
	}
	return " " + result
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	all := make([]any, 0, len(l.fields)+len(args))
	all = append(all, l.fields...)
	all = append(all, args...)

	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		entry := map[string]any{"level": level.String(), "msg": msg}
		for i := 0; i+1 < len(all); i += 2 {
			entry[fmt.Sprint(all[i])] = all[i+1]
		}
		b, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(s.w, "{\"level\":\"ERROR\",\"msg\":%q}\n", "log marshal failed: "+err.Error())
			return
		}
		fmt.Fprintln(s.w, string(b))
	default:
		fmt.Fprintf(s.w, "[%s] %s%s\n", level.String(), msg, formatArgs(all))
	}

	if s.sync {
		if f, ok := s.w.(interface{ Sync() error }); ok {
			f.Sync()
		}
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)   { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)   { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any)  { l.log(LevelError, msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Printf is kept for call sites migrated from stdlib log.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
