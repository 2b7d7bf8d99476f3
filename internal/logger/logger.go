package logger

// Package logger builds the process logger: compact messages on the console
// and, when a log file is configured, full text records fanned out to it.

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog.Logger. Console output goes through a
// ConsoleHandler at level; file, when not nil, receives every record at debug
// level in slog's text format.
func Setup(console io.Writer, file io.Writer, level slog.Level) *slog.Logger {
	consoleHandler := NewConsoleHandler(console, level)

	var handler slog.Handler = consoleHandler
	if file != nil {
		// File Handler: Text format for readability in the local log file.
		fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = slogmulti.Fanout(consoleHandler, fileHandler)
	}

	logger := slog.New(handler)

	// Set as global default so slog.Info() works out of the box if needed.
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ConsoleHandler writes one line per record: the level for warnings and errors,
// then the message and attributes. Time is omitted.
type ConsoleHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{w: w, mu: &sync.Mutex{}, level: level}
}

// Enabled reports whether level reaches the configured threshold.
func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats the record and writes it to the console.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	// Use a temporary TextHandler to format the record attributes into a string.
	th := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
				return slog.Attr{}
			}
			return a
		},
	})

	// Replay accumulated state (groups and attributes) onto the temporary handler.
	var handler slog.Handler = th
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	handler = handler.WithAttrs(h.attrs)

	if err := handler.Handle(ctx, r); err != nil {
		return err
	}

	line := r.Message
	if attrs := strings.TrimSpace(buf.String()); attrs != "" {
		line += " " + attrs
	}
	if r.Level >= slog.LevelWarn {
		line = r.Level.String() + " " + line
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// WithAttrs returns a new ConsoleHandler with the given attributes appended.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &ConsoleHandler{
		w:      h.w,
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

// WithGroup returns a new ConsoleHandler with the given group appended.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &ConsoleHandler{
		w:      h.w,
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
