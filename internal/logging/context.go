package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	repoIDKey ctxKey = iota
	diagramIDKey
	itemIDKey
)

// WithRepoID returns a context carrying the repository uuid.
func WithRepoID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, repoIDKey, id)
}

// WithDiagramID returns a context carrying the diagram object id.
func WithDiagramID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, diagramIDKey, id)
}

// WithItemID returns a context carrying a diagram item id.
func WithItemID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// RepoID extracts the repository uuid, or "" if absent.
func RepoID(ctx context.Context) string {
	v, _ := ctx.Value(repoIDKey).(string)
	return v
}

// DiagramID extracts the diagram id, or 0 if absent.
func DiagramID(ctx context.Context) uint64 {
	v, _ := ctx.Value(diagramIDKey).(uint64)
	return v
}

// ItemID extracts the item id, or 0 if absent.
func ItemID(ctx context.Context) uint64 {
	v, _ := ctx.Value(itemIDKey).(uint64)
	return v
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := RepoID(ctx); v != "" {
		attrs = append(attrs, slog.String("repo_id", v))
	}
	if v := DiagramID(ctx); v != 0 {
		attrs = append(attrs, slog.Uint64("diagram_id", v))
	}
	if v := ItemID(ctx); v != 0 {
		attrs = append(attrs, slog.Uint64("item_id", v))
	}
	return attrs
}

// LogWith returns a logger enriched with the correlation ids found in ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects the correlation ids
// of the record's context, so logger.InfoContext(ctx, ...) carries them.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// New builds the process logger: a text handler on w wrapped in a
// CorrelationHandler.
func New(w io.Writer, level string) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}
