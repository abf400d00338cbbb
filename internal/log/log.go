// Package log configures the process-wide slog logger.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

// TextHandler extends the standard [slog.TextHandler] with a right-padded
// level indicator and message prefix while excluding the default time, level,
// and message attributes from the structured output:
//
//	LEVEL MESSAGE key1=value1 key2=value2
type TextHandler struct {
	*slog.TextHandler
	mu sync.Mutex
	w  io.Writer
}

func NewTextHandler(w io.Writer, opts *slog.HandlerOptions) *TextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey {
			return slog.Attr{}
		}
		return a
	}

	return &TextHandler{
		TextHandler: slog.NewTextHandler(w, opts),
		w:           w,
	}
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.TextHandler.WithAttrs(attrs)
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	return h.TextHandler.WithGroup(name)
}

func (h *TextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	prefix := fmt.Sprintf("%-5s %s ", r.Level.String(), r.Message)
	if _, err := h.w.Write([]byte(prefix)); err != nil {
		return err
	}
	return h.TextHandler.Handle(ctx, r)
}

// InitFromEnv installs the default logger. LOG_LEVEL selects the minimum
// level (debug, info, warn, error); DEBUG=1/true/yes is a shortcut for debug.
func InitFromEnv() {
	level := slog.LevelInfo

	debugValues := []string{"1", "true", "yes"}
	if slices.Contains(debugValues, strings.ToLower(os.Getenv("DEBUG"))) {
		level = slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	slog.SetDefault(slog.New(NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Debug("logger initialized")
}
