// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/z5labs/dali/handler"
	"github.com/z5labs/dali/internal/slogfield"
	"github.com/z5labs/dali/lifecycle"
)

// Pipeline serves a single request through the abstract [handler.Request]
// view of it.
type Pipeline interface {
	Handle(context.Context, handler.Request) handler.Outcome
}

type handlerOptions struct {
	memLimit int
	log      *slog.Logger
}

// HandlerOption configures a [Handler].
type HandlerOption func(*handlerOptions)

// ScopeMemoryLimit caps the bytes each request's scope may reserve.
// Zero, the default, means unlimited.
func ScopeMemoryLimit(n int) HandlerOption {
	return func(ho *handlerOptions) {
		ho.memLimit = n
	}
}

// HandlerLogger sets the logger used to report request cleanup failures.
func HandlerLogger(log *slog.Logger) HandlerOption {
	return func(ho *handlerOptions) {
		ho.log = log
	}
}

// Handler adapts a [Pipeline] to [net/http].
type Handler struct {
	pipeline Pipeline
	memLimit int
	log      *slog.Logger
}

// NewHandler returns a [Handler] serving requests with p.
func NewHandler(p Pipeline, opts ...HandlerOption) *Handler {
	ho := &handlerOptions{
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(ho)
	}
	return &Handler{
		pipeline: p,
		memLimit: ho.memLimit,
		log:      ho.log,
	}
}

// ServeHTTP implements the [http.Handler] interface. It does not return
// until the pipeline has finalized the request, and it always releases
// the request scope before returning.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := lifecycle.NewScope(lifecycle.MemoryLimit(h.memLimit))
	defer func() {
		err := scope.Close(context.WithoutCancel(ctx))
		if err != nil {
			h.log.WarnContext(ctx, "failed to release request resources", slogfield.Error(err))
		}
	}()

	req := newRequest(w, r, scope)
	outcome := h.pipeline.Handle(ctx, req)
	if outcome == handler.Pending {
		h.log.DebugContext(ctx, "waiting on request body")
	}
	<-req.done
}
