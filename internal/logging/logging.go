// Package logging builds the process logger: slog to stderr, with Error
// records mirrored to Rollbar when a token is configured.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rollbar/rollbar-go"
)

type Options struct {
	Level        string // debug|info|warn|error
	Format       string // text|json
	Env          string
	RollbarToken string
	Output       io.Writer
}

// New returns the root logger and a flush func to call before exit.
func New(opts Options) (*slog.Logger, func()) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	if opts.RollbarToken == "" {
		return slog.New(h), func() {}
	}

	rollbar.SetToken(opts.RollbarToken)
	rollbar.SetEnvironment(opts.Env)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}
	return slog.New(&rollbarHandler{next: h, report: rollbar.Error}), rollbar.Close
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rollbarHandler forwards Error-level records to report before passing
// them to next.
type rollbarHandler struct {
	next   slog.Handler
	attrs  []slog.Attr
	report func(...interface{})
}

func (h *rollbarHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *rollbarHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		extras := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
		var errVal error
		collect := func(a slog.Attr) bool {
			if e, ok := a.Value.Any().(error); ok && errVal == nil {
				errVal = e
			}
			extras[a.Key] = a.Value.String()
			return true
		}
		for _, a := range h.attrs {
			collect(a)
		}
		r.Attrs(collect)
		if errVal != nil {
			h.report(errVal, r.Message, extras)
		} else {
			h.report(r.Message, extras)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *rollbarHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &rollbarHandler{next: h.next.WithAttrs(attrs), attrs: merged, report: h.report}
}

func (h *rollbarHandler) WithGroup(name string) slog.Handler {
	return &rollbarHandler{next: h.next.WithGroup(name), attrs: h.attrs, report: h.report}
}

// Discard is a logger for tests and tools that should stay quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
