// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package maskslog provides a [slog.Handler] which rewrites sensitive
// attributes before they reach the underlying handler.
package maskslog

import (
	"context"
	"log/slog"
	"net/url"
)

// Masker rewrites a single attribute.
type Masker func(slog.Attr) slog.Attr

// Option configures a [Handler].
type Option func(map[string]Masker)

// Attr masks every top level attribute named key with f.
func Attr(key string, f Masker) Option {
	return func(m map[string]Masker) {
		m[key] = f
	}
}

// Anonymous replaces the attribute value with a fixed placeholder.
func Anonymous(a slog.Attr) slog.Attr {
	return slog.String(a.Key, "****")
}

// URL redacts the password of a URL valued attribute. Values which do
// not parse as a URL are replaced entirely.
func URL(a slog.Attr) slog.Attr {
	u, err := url.Parse(a.Value.String())
	if err != nil {
		return Anonymous(a)
	}
	return slog.String(a.Key, u.Redacted())
}

// Handler masks attributes added to records and through WithAttrs.
// Attributes inside groups are left untouched.
type Handler struct {
	slog    slog.Handler
	maskers map[string]Masker
	grouped bool
}

// NewHandler wraps h.
func NewHandler(h slog.Handler, opts ...Option) *Handler {
	m := make(map[string]Masker)
	for _, opt := range opts {
		opt(m)
	}
	return &Handler{slog: h, maskers: m}
}

// Enabled implements the [slog.Handler] interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the [slog.Handler] interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if h.grouped || len(h.maskers) == 0 {
		return h.slog.Handle(ctx, record)
	}

	nr := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.mask(a))
		return true
	})
	return h.slog.Handle(ctx, nr)
}

func (h *Handler) mask(a slog.Attr) slog.Attr {
	f, ok := h.maskers[a.Key]
	if !ok {
		return a
	}
	return f(a)
}

// WithAttrs implements the [slog.Handler] interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := attrs
	if !h.grouped {
		masked = make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			masked[i] = h.mask(a)
		}
	}
	return &Handler{
		slog:    h.slog.WithAttrs(masked),
		maskers: h.maskers,
		grouped: h.grouped,
	}
}

// WithGroup implements the [slog.Handler] interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		slog:    h.slog.WithGroup(name),
		maskers: h.maskers,
		grouped: true,
	}
}
