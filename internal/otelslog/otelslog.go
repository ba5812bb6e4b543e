// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelslog provides OpenTelemetry aware slog.Handler implementations.
package otelslog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/z5labs/dali/internal/slogfield"

	"go.opentelemetry.io/otel/trace"
)

// Handler is an slog.Handler which correlates records with the active
// span by adding its Trace ID and Span ID under the "otel" group.
type Handler struct {
	slog slog.Handler
}

// NewHandler wraps h.
func NewHandler(h slog.Handler) *Handler {
	return &Handler{slog: h}
}

// New provides a simple wrapper for slog.New(NewHandler(h)).
func New(h slog.Handler) *slog.Logger {
	return slog.New(NewHandler(h))
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return h.slog.Handle(ctx, record)
	}

	r := record.Clone()
	r.AddAttrs(
		slog.Group(
			"otel",
			slogfield.String("trace_id", spanCtx.TraceID().String()),
			slogfield.String("span_id", spanCtx.SpanID().String()),
		),
	)
	return h.slog.Handle(ctx, r)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.slog.WithAttrs(attrs))
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.slog.WithGroup(name))
}

// Fanout dispatches every record to all of its handlers.
type Fanout []slog.Handler

// Enabled implements the slog.Handler interface.
func (f Fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

// Handle implements the slog.Handler interface.
func (f Fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		err := h.Handle(ctx, record.Clone())
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements the slog.Handler interface.
func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make(Fanout, len(f))
	for i, h := range f {
		hs[i] = h.WithAttrs(attrs)
	}
	return hs
}

// WithGroup implements the slog.Handler interface.
func (f Fanout) WithGroup(name string) slog.Handler {
	hs := make(Fanout, len(f))
	for i, h := range f {
		hs[i] = h.WithGroup(name)
	}
	return hs
}
