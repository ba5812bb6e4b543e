// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/z5labs/dali/internal/otelslog"
	"github.com/z5labs/dali/internal/slogfield"
	"github.com/z5labs/dali/lifecycle"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	logbridge "go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/z5labs/dali"

// InitializeOTel implements the appbuilder.OTelInitializer interface.
// It installs the global telemetry providers and the default logger.
// Connections opened for the exporters are closed by a post run hook
// registered with the [lifecycle.Context] carried by ctx.
func (cfg Config) InitializeOTel(ctx context.Context) error {
	return cfg.initializeOTel(ctx, os.Stdout, os.Stderr)
}

// exporters left nil are not installed.
type exporters struct {
	span   sdktrace.SpanExporter
	metric sdkmetric.Exporter
	log    sdklog.Exporter

	conn *grpc.ClientConn
}

func (e exporters) closeConn() lifecycle.Hook {
	return lifecycle.HookFunc(func(ctx context.Context) error {
		if e.conn == nil {
			return nil
		}
		return e.conn.Close()
	})
}

func (cfg Config) initializeOTel(ctx context.Context, telemetryOut, logOut io.Writer) error {
	var h slog.Handler = otelslog.NewHandler(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.Logging.Level,
	}))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTel.Exporter == "" || cfg.OTel.Exporter == ExporterNone {
		slog.SetDefault(slog.New(h))
		return nil
	}

	res, err := newResource(ctx, cfg.OTel)
	if err != nil {
		return err
	}

	var exps exporters
	switch cfg.OTel.Exporter {
	case ExporterStdout:
		exps, err = stdoutExporters(telemetryOut)
	case ExporterOTLP:
		exps, err = otlpExporters(ctx, cfg.OTel.Target)
	case ExporterGCP:
		exps, err = gcpExporters(cfg.OTel.ProjectID)
	default:
		err = fmt.Errorf("unknown telemetry exporter: %q", cfg.OTel.Exporter)
	}
	if err != nil {
		return err
	}
	if lc, ok := lifecycle.FromContext(ctx); ok {
		lc.OnPostRun(exps.closeConn())
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exps.span),
	)
	otel.SetTracerProvider(tp)

	if exps.metric != nil {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exps.metric)),
		)
		otel.SetMeterProvider(mp)
	}

	if exps.log == nil {
		slog.SetDefault(slog.New(h))
		return nil
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exps.log)),
	)
	global.SetLoggerProvider(lp)

	slog.SetDefault(slog.New(otelslog.Fanout{
		h,
		logbridge.NewHandler(instrumentationName, logbridge.WithLoggerProvider(lp)),
	}))
	return nil
}

// newResource describes the process. Attributes of the GCP environment
// are detected when running on Google Cloud.
func newResource(ctx context.Context, cfg OTelConfig) (*resource.Resource, error) {
	res, err := resource.New(
		ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if errors.Is(err, resource.ErrPartialResource) {
		slog.WarnContext(ctx, "partially detected telemetry resource", slogfield.Error(err))
		return res, nil
	}
	return res, err
}

func stdoutExporters(w io.Writer) (exporters, error) {
	se, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return exporters{}, err
	}
	me, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return exporters{}, err
	}
	le, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return exporters{}, err
	}
	return exporters{span: se, metric: me, log: le}, nil
}

// ErrMissingTarget is returned when the OTLP exporter is selected without
// a collector target.
var ErrMissingTarget = errors.New("otlp exporter requires a target")

func otlpExporters(ctx context.Context, target string) (exporters, error) {
	if target == "" {
		return exporters{}, ErrMissingTarget
	}

	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return exporters{}, err
	}

	se, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return exporters{}, errors.Join(err, conn.Close())
	}
	me, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return exporters{}, errors.Join(err, conn.Close())
	}
	le, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn))
	if err != nil {
		return exporters{}, errors.Join(err, conn.Close())
	}
	return exporters{span: se, metric: me, log: le, conn: conn}, nil
}

// gcpExporters only exports spans. Metrics and logs stay with the
// global no-op providers.
func gcpExporters(projectID string, clientOpts ...option.ClientOption) (exporters, error) {
	opts := []texporter.Option{
		texporter.WithTraceClientOptions(append(
			[]option.ClientOption{option.WithTelemetryDisabled()},
			clientOpts...,
		)),
	}
	if projectID != "" {
		opts = append(opts, texporter.WithProjectID(projectID))
	}

	se, err := texporter.New(opts...)
	if err != nil {
		return exporters{}, err
	}
	return exporters{span: se}, nil
}
