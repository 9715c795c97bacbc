package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/trusttai/api/internal/config"
)

// Setup configures the default slog logger based on the provided config.
// Any extra handlers (the OpenTelemetry bridge, for one) receive every record
// alongside the console handler.
func Setup(cfg config.LogConfig, extra ...slog.Handler) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, cfg, extra...)))
}

func NewHandler(w io.Writer, cfg config.LogConfig, extra ...slog.Handler) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if len(extra) == 0 {
		return handler
	}
	return fanout(append([]slog.Handler{handler}, extra...))
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
