package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Module tags used as "[tag] message" prefixes.
const (
	TagTracker  = "tracker"
	TagIdentity = "identity"
	TagKVStore  = "kvstore"
	TagHTTP     = "http"
	TagCLI      = "cli"
)

// Config captures logging configuration options. Dir and Filename are
// optional; when both are set records are also written as JSON to that file.
type Config struct {
	Level    string
	Dir      string
	Filename string
	Console  io.Writer
	NoColor  bool
}

// Logger writes every record to a console text handler and, optionally, to a
// JSON file handler.
type Logger struct {
	mu         sync.RWMutex
	textLogger *slog.Logger
	jsonLogger *slog.Logger
	logFile    *os.File
}

// ParseLevel maps a configuration level string onto slog levels. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level := ParseLevel(cfg.Level)

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	l := &Logger{
		textLogger: slog.New(NewTextHandler(console, level, !cfg.NoColor)),
	}

	if cfg.Dir != "" && cfg.Filename != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.Filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.logFile = file
		l.jsonLogger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
	}
	return l, nil
}

// Default is the logger the SDK uses when the caller does not supply one:
// warnings and errors only, on stderr.
func Default() *Logger {
	return &Logger{
		textLogger: slog.New(NewTextHandler(os.Stderr, slog.LevelWarn, false)),
	}
}

// FromSlog adapts a caller-provided slog logger. A nil logger yields Default.
func FromSlog(sl *slog.Logger) *Logger {
	if sl == nil {
		return Default()
	}
	return &Logger{textLogger: sl}
}

// Discard drops every record.
func Discard() *Logger {
	return &Logger{textLogger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))}
}

// Slog exposes the console logger for structured integrations.
func (l *Logger) Slog() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textLogger
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	l.jsonLogger = nil
	return err
}

// log accepts either printf-style args (when msg contains a verb) or a single
// map of fields rendered as sorted attributes.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	var attrs []slog.Attr
	if len(args) > 0 && strings.Contains(msg, "%") {
		msg = fmt.Sprintf(msg, args...)
	} else if len(args) > 0 && args[0] != nil {
		if fields, ok := args[0].(map[string]any); ok {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, slog.Any(k, fields[k]))
			}
		} else {
			attrs = append(attrs, slog.Any("fields", args[0]))
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	ctx := context.Background()
	if l.jsonLogger != nil {
		l.jsonLogger.LogAttrs(ctx, level, msg, attrs...)
	}
	l.textLogger.LogAttrs(ctx, level, msg, attrs...)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// FormatLog builds a message carrying a single module tag, e.g.
// FormatLog("identity", "regenerated") -> "[identity] regenerated". Messages that
// already start with "[" are returned as-is.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" {
		return message
	}
	if strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) DebugTag(tag, msg string, args ...any) {
	if l == nil {
		return
	}
	l.log(slog.LevelDebug, FormatLog(tag, msg), args...)
}

func (l *Logger) InfoTag(tag, msg string, args ...any) {
	if l == nil {
		return
	}
	l.log(slog.LevelInfo, FormatLog(tag, msg), args...)
}

func (l *Logger) WarnTag(tag, msg string, args ...any) {
	if l == nil {
		return
	}
	l.log(slog.LevelWarn, FormatLog(tag, msg), args...)
}

func (l *Logger) ErrorTag(tag, msg string, args ...any) {
	if l == nil {
		return
	}
	l.log(slog.LevelError, FormatLog(tag, msg), args...)
}
