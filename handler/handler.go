// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package handler implements the request pipeline of a synthetic response
// route: body intake, body planning, header emission, body streaming and
// finalization.
//
// The pipeline is written against [Request], an abstract view of the host
// server's per-request capabilities, so it never depends on how the host
// serializes headers or moves bytes.
package handler

import (
	"context"
	"log/slog"

	"github.com/z5labs/dali/chain"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/intake"
	"github.com/z5labs/dali/internal/slogfield"
	"github.com/z5labs/dali/lifecycle"
	"github.com/z5labs/dali/route"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/dali/handler"

// Request is the host server's view of a single in-flight request.
type Request interface {
	intake.BodyDiscarder
	intake.BodyReader

	// Scope is released by the host once the request is finalized,
	// however it ends.
	Scope() *lifecycle.Scope

	// HeadOnly reports whether the response must not carry a body.
	HeadOnly() bool

	// SendHeader transmits the response status and headers.
	SendHeader(Header) error

	// Output streams the body described by the chain.
	Output(chain.Chain) error

	// Finalize ends the request. A non-nil error is reported to the
	// client as an internal server error if headers were not yet sent.
	Finalize(error)
}

// Outcome reports whether [Handler.Handle] finished the request.
type Outcome int

const (
	// Done means the request was finalized before Handle returned.
	Done Outcome = iota

	// Pending means the request will be finalized by a continuation.
	Pending
)

// String implements the [fmt.Stringer] interface.
func (o Outcome) String() string {
	if o == Pending {
		return "pending"
	}
	return "done"
}

// Option configures a [Handler].
type Option func(*Handler)

// Logger sets the logger failures and responses are reported to.
func Logger(log *slog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// Clock overrides the clock used to time body reads.
func Clock(c intake.Clock) Option {
	return func(h *Handler) {
		h.clock = c
	}
}

// RateUnit sets the unit of the rate in diagnostic payloads.
func RateUnit(u diag.RateUnit) Option {
	return func(h *Handler) {
		h.rateUnit = u
	}
}

// TracerProvider overrides the globally registered [trace.TracerProvider].
func TracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		h.tracerProvider = tp
	}
}

// MeterProvider overrides the globally registered [metric.MeterProvider].
func MeterProvider(mp metric.MeterProvider) Option {
	return func(h *Handler) {
		h.meterProvider = mp
	}
}

// Handler serves a single resolved route.
type Handler struct {
	route    route.Effective
	planner  chain.Planner
	clock    intake.Clock
	rateUnit diag.RateUnit
	log      *slog.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer         trace.Tracer
	bodyBytes      metric.Int64Counter
	failures       metric.Int64Counter
	intakeDuration metric.Float64Histogram
}

// New returns a [Handler] for rt which builds bodies with planner.
func New(rt route.Effective, planner chain.Planner, opts ...Option) *Handler {
	h := &Handler{
		route:          rt,
		planner:        planner,
		clock:          intake.SystemClock{},
		rateUnit:       diag.BytesPerSecond,
		log:            slog.New(slog.DiscardHandler),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(
		slogfield.Route(rt.Pattern),
		slogfield.TargetBytes(uint64(rt.Bytes)),
	)
	h.tracer = h.tracerProvider.Tracer(instrumentationName)
	h.initMetrics()
	return h
}

func (h *Handler) initMetrics() {
	meter := h.meterProvider.Meter(instrumentationName)

	var err error
	h.bodyBytes, err = meter.Int64Counter(
		"dali.response.body.size",
		metric.WithUnit("By"),
		metric.WithDescription("Synthetic body bytes handed to the transport."),
	)
	if err != nil {
		h.log.Warn("failed to create body size counter", slogfield.Error(err))
		h.bodyBytes = noop.Int64Counter{}
	}

	h.failures, err = meter.Int64Counter(
		"dali.request.failures",
		metric.WithDescription("Requests which ended with an error, by phase."),
	)
	if err != nil {
		h.log.Warn("failed to create failure counter", slogfield.Error(err))
		h.failures = noop.Int64Counter{}
	}

	h.intakeDuration, err = meter.Float64Histogram(
		"dali.request.body.read.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to read request bodies in read intake mode."),
	)
	if err != nil {
		h.log.Warn("failed to create intake duration histogram", slogfield.Error(err))
		h.intakeDuration = noop.Float64Histogram{}
	}
}

type requestContext struct {
	span        trace.Span
	targetBytes int64
	intake      intake.Result
	body        chain.Chain
}

// Handle runs the pipeline for req. When the route reads request bodies
// it returns [Pending] as soon as the read is issued and the rest of the
// pipeline runs on the read's continuation. Either way req is finalized
// exactly once.
func (h *Handler) Handle(ctx context.Context, req Request) Outcome {
	ctx, span := h.tracer.Start(
		ctx,
		"dali.handle",
		trace.WithAttributes(
			attribute.String("dali.route", h.route.Pattern),
			attribute.Int64("dali.target_bytes", h.route.Bytes),
			attribute.String("dali.strategy", string(h.route.Strategy)),
			attribute.String("dali.intake", string(h.route.Intake)),
		),
	)
	rc := &requestContext{
		span:        span,
		targetBytes: h.route.Bytes,
	}

	if h.route.Intake == route.IntakeRead {
		intake.ReadAndContinue(req, h.clock, func(res intake.Result) {
			rc.intake = res
			h.intakeDuration.Record(ctx, res.Elapsed().Seconds())
			span.AddEvent("request body read", trace.WithAttributes(
				attribute.Int64("dali.bytes_read", res.BytesRead),
			))
			if res.Err != nil {
				h.finalize(ctx, req, rc, phaseIntake, res.Err)
				return
			}
			h.respond(ctx, req, rc)
		})
		return Pending
	}

	err := intake.Discard(req)
	if err != nil {
		h.finalize(ctx, req, rc, phaseIntake, err)
		return Done
	}
	h.respond(ctx, req, rc)
	return Done
}

const (
	phaseIntake      = "intake"
	phasePlan        = "plan"
	phaseDiagnostics = "diagnostics"
	phaseHeader      = "header"
	phaseOutput      = "output"
)

func (h *Handler) respond(ctx context.Context, req Request, rc *requestContext) {
	body, err := h.planner.Plan(req.Scope(), rc.targetBytes)
	if err != nil {
		h.finalize(ctx, req, rc, phasePlan, err)
		return
	}

	if h.route.Diagnostics {
		elapsed := uint64(rc.intake.Elapsed().Microseconds())
		read := uint64(max(rc.intake.BytesRead, 0))

		err = req.Scope().Reserve(diag.Length(elapsed, read, h.rateUnit))
		if err != nil {
			h.finalize(ctx, req, rc, phaseDiagnostics, err)
			return
		}
		body.Prepend(diag.Encode(elapsed, read, h.rateUnit))
	}
	rc.body = body

	phase, err := h.emit(req, rc)
	h.finalize(ctx, req, rc, phase, err)
}

func (h *Handler) finalize(ctx context.Context, req Request, rc *requestContext, phase string, err error) {
	defer rc.span.End()
	defer req.Finalize(err)

	if err != nil {
		h.log.ErrorContext(
			ctx,
			"failed to serve synthetic response",
			slogfield.Phase(phase),
			slogfield.Error(err),
		)
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("dali.route", h.route.Pattern),
			attribute.String("dali.phase", phase),
		))
		rc.span.RecordError(err)
		rc.span.SetStatus(codes.Error, phase)
		return
	}

	h.bodyBytes.Add(ctx, rc.body.Size(), metric.WithAttributes(
		attribute.String("dali.route", h.route.Pattern),
		attribute.String("dali.strategy", string(h.route.Strategy)),
	))
	h.log.DebugContext(
		ctx,
		"responded",
		slogfield.Int64("content_length", rc.body.Size()),
		slogfield.Int("descriptors", rc.body.Len()),
	)
}
