package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// moduleColors maps a "[tag]" message prefix to its console color.
var moduleColors = map[string]string{
	"[" + TagTracker + "]":  "\x1b[94m",
	"[" + TagIdentity + "]": "\x1b[96m",
	"[" + TagKVStore + "]":  "\x1b[95m",
	"[" + TagHTTP + "]":     "\x1b[92m",
	"[" + TagCLI + "]":      "\x1b[97m",
	"[OBSERVABILITY]":       "\x1b[90m",
}

// TextHandler renders records as a single colored console line:
// "[time] [LEVEL] message { k=v }". Tagged messages keep the tag color instead
// of the level label.
type TextHandler struct {
	writer io.Writer
	level  slog.Leveler
	color  bool
	attrs  []slog.Attr
	mu     *sync.Mutex
}

func NewTextHandler(w io.Writer, level slog.Leveler, color bool) *TextHandler {
	return &TextHandler{
		writer: w,
		level:  level,
		color:  color,
		mu:     &sync.Mutex{},
	}
}

func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelStr, levelColor string
	switch {
	case r.Level >= slog.LevelError:
		levelStr, levelColor = "ERROR", colorError
	case r.Level >= slog.LevelWarn:
		levelStr, levelColor = "WARN", colorWarn
	case r.Level >= slog.LevelInfo:
		levelStr, levelColor = "INFO", colorInfo
	default:
		levelStr, levelColor = "DEBUG", colorDebug
	}

	msg := r.Message
	moduleColor := ""
	for prefix, c := range moduleColors {
		if strings.HasPrefix(msg, prefix) {
			moduleColor = c
			break
		}
	}

	var b strings.Builder
	b.WriteString(h.paint(colorTime, "["+timeStr+"]"))
	b.WriteByte(' ')
	b.WriteString(h.paint(levelColor, "["+levelStr+"]"))
	b.WriteByte(' ')
	if moduleColor != "" {
		b.WriteString(h.paint(moduleColor, msg))
	} else {
		b.WriteString(msg)
	}

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(" {")
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		b.WriteString(" }")
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup is flattened: groups are not rendered on the console.
func (h *TextHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *TextHandler) paint(color, s string) string {
	if !h.color {
		return s
	}
	return color + s + colorReset
}
