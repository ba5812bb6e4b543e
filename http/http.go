// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package http serves synthetic response routes over HTTP/1.1 and HTTP/2.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/dali/health"
	"github.com/z5labs/dali/http/httphealth"
	"github.com/z5labs/dali/http/httpvalidate"
	"github.com/z5labs/dali/internal/slogfield"
	"github.com/z5labs/dali/internal/try"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

// Health probe endpoints served by every [Runtime].
const (
	StartupPath   = "/health/startup"
	LivenessPath  = "/health/liveness"
	ReadinessPath = "/health/readiness"
)

type runtimeOptions struct {
	port            uint
	mux             *http.ServeMux
	logHandler      slog.Handler
	readiness       *health.Binary
	liveness        *health.Binary
	tlsConfig       *tls.Config
	http2Only       bool
	h2c             bool
	shutdownTimeout time.Duration
	errs            []error
}

// RuntimeOption configures a [Runtime].
type RuntimeOption func(*runtimeOptions)

// ListenOnPort will configure the HTTP server to listen on the given port.
//
// Default port is 8080.
func ListenOnPort(port uint) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.port = port
	}
}

// LogHandler sets the handler the server lifecycle is logged to.
func LogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// Handle registers a http.Handler for the given path pattern.
func Handle(pattern string, h http.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.errs = append(ro.errs, registerEndpoint(ro.mux, pattern, h))
	}
}

// HandleFunc registers a http.HandlerFunc for the given path pattern.
func HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) RuntimeOption {
	return Handle(pattern, http.HandlerFunc(f))
}

// Readiness overrides the readiness state. It is marked ready once the
// server accepts connections and unready as soon as it starts draining.
func Readiness(r *health.Binary) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.readiness = r
	}
}

// Liveness overrides the liveness state. It is marked alive once the
// server accepts connections.
func Liveness(l *health.Binary) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.liveness = l
	}
}

// TLSConfig serves TLS with cfg. HTTP/2 is negotiated via ALPN.
func TLSConfig(cfg *tls.Config) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.tlsConfig = cfg
	}
}

// Http2Only rejects requests made with a protocol older than HTTP/2.
func Http2Only() RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.http2Only = true
	}
}

// H2C accepts HTTP/2 without TLS, via prior knowledge or an upgrade.
// It is ignored when a [TLSConfig] is set.
func H2C() RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.h2c = true
	}
}

// ShutdownTimeout bounds how long in-flight requests are waited on
// once the server starts shutting down. Default is 30 seconds.
func ShutdownTimeout(d time.Duration) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.shutdownTimeout = d
	}
}

// InvalidPatternError occurs when a handler can not be registered for a
// pattern, because it is malformed or conflicts with another.
type InvalidPatternError struct {
	Pattern string
	Cause   error
}

// Error implements the [builtin.error] interface.
func (e InvalidPatternError) Error() string {
	return fmt.Sprintf("can not register pattern %q: %s", e.Pattern, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidPatternError) Unwrap() error {
	return e.Cause
}

// Runtime is an HTTP server.
type Runtime struct {
	port   uint
	listen func(string, string) (net.Listener, error)

	log *slog.Logger

	tlsConfig       *tls.Config
	http2Only       bool
	h2c             bool
	shutdownTimeout time.Duration
	h               http.Handler

	started   *health.Binary
	liveness  *health.Binary
	readiness *health.Binary
}

// NewRuntime returns a [Runtime] serving the registered handlers along
// with the health probe endpoints.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	ros := &runtimeOptions{
		port:            8080,
		mux:             http.NewServeMux(),
		logHandler:      slog.DiscardHandler,
		readiness:       new(health.Binary),
		liveness:        new(health.Binary),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(ros)
	}

	rt := &Runtime{
		port:            ros.port,
		listen:          net.Listen,
		log:             slog.New(ros.logHandler),
		tlsConfig:       ros.tlsConfig,
		http2Only:       ros.http2Only,
		h2c:             ros.h2c,
		shutdownTimeout: ros.shutdownTimeout,
		h:               ros.mux,
		started:         new(health.Binary),
		liveness:        ros.liveness,
		readiness:       ros.readiness,
	}

	probes := map[string]health.Metric{
		StartupPath:   rt.started,
		LivenessPath:  rt.liveness,
		ReadinessPath: rt.readiness,
	}
	for path, m := range probes {
		ros.errs = append(ros.errs, registerEndpoint(
			ros.mux,
			path,
			httpvalidate.Request(
				httphealth.NewHandler(m),
				httpvalidate.ForMethods(http.MethodGet, http.MethodHead),
			),
		))
	}

	err := errors.Join(ros.errs...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (rt *Runtime) Run(ctx context.Context) error {
	ls, err := rt.listen("tcp", fmt.Sprintf(":%d", rt.port))
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return err
	}

	var h http.Handler = rt.h
	if rt.http2Only {
		h = httpvalidate.Request(h, httpvalidate.MinProto(2, 0))
	}

	s := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(rt.log.Handler(), slog.LevelWarn),
	}

	switch {
	case rt.tlsConfig != nil:
		cfg := rt.tlsConfig.Clone()
		cfg.NextProtos = append([]string{"h2"}, cfg.NextProtos...)
		if rt.http2Only {
			cfg.NextProtos = []string{"h2"}
		}
		s.TLSConfig = cfg
		err = http2.ConfigureServer(s, &http2.Server{})
		if err != nil {
			ls.Close()
			return err
		}
		ls = tls.NewListener(ls, cfg)
	case rt.h2c:
		h = h2c.NewHandler(h, &http2.Server{})
	}

	s.Handler = otelhttp.NewHandler(
		h,
		"server",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		rt.readiness.MarkUnhealthy()

		ctx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.log.Info("shutting down service")
		return s.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.started.MarkHealthy()
		rt.liveness.MarkHealthy()
		rt.readiness.MarkHealthy()
		rt.log.Info("started service", slogfield.String("addr", ls.Addr().String()))
		return s.Serve(ls)
	})

	err = g.Wait()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	rt.log.Error("service encountered unexpected error", slogfield.Error(err))
	return err
}

func registerEndpoint(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if err != nil {
			err = InvalidPatternError{Pattern: pattern, Cause: err}
		}
	}()
	defer try.Recover(&err)

	mux.Handle(pattern, otelhttp.WithRouteTag(pattern, h))
	return nil
}
