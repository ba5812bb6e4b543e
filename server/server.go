// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server assembles configured routes into a runnable HTTP server.
package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"os"
	"syscall"

	"github.com/z5labs/dali"
	"github.com/z5labs/dali/app"
	"github.com/z5labs/dali/chain"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/handler"
	"github.com/z5labs/dali/http"
	"github.com/z5labs/dali/internal/slogfield"
	"github.com/z5labs/dali/route"
)

// CertificateLoadError occurs when the configured TLS key pair can not be loaded.
type CertificateLoadError struct {
	CertFile string
	KeyFile  string
	Cause    error
}

// Error implements the [builtin.error] interface.
func (e CertificateLoadError) Error() string {
	return "failed to load tls key pair " + e.CertFile + " and " + e.KeyFile + ": " + e.Cause.Error()
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e CertificateLoadError) Unwrap() error {
	return e.Cause
}

// Endpoint is a resolved route ready to be registered with a mux.
type Endpoint struct {
	Route   route.Effective
	Handler *http.Handler
}

// Endpoints resolves the configured routes and builds a handler per route.
func Endpoints(cfg DaliConfig, log *slog.Logger) ([]Endpoint, error) {
	var opts []route.ResolveOption
	if cfg.BlockMultiple {
		opts = append(opts, route.BlockMultiple(chain.BlockSize))
	}

	routes, err := route.Resolve(cfg.Route, opts...)
	if err != nil {
		return nil, err
	}

	rateUnit := cfg.RateUnit
	if rateUnit == "" {
		rateUnit = diag.BytesPerSecond
	}

	endpoints := make([]Endpoint, 0, len(routes))
	for _, rt := range routes {
		routeLog := log.With(slogfield.Route(rt.Pattern))
		p := handler.New(
			rt,
			planner(rt.Strategy, cfg.ZeroSource),
			handler.Logger(log),
			handler.RateUnit(rateUnit),
		)
		endpoints = append(endpoints, Endpoint{
			Route: rt,
			Handler: http.NewHandler(
				p,
				http.ScopeMemoryLimit(cfg.MaxScopeBytes),
				http.HandlerLogger(routeLog),
			),
		})

		routeLog.Info(
			"resolved route",
			slogfield.TargetBytes(uint64(rt.Bytes)),
			slogfield.String("strategy", string(rt.Strategy)),
			slogfield.String("intake", string(rt.Intake)),
		)
	}
	return endpoints, nil
}

func planner(s route.Strategy, zeroSource string) chain.Planner {
	if s == route.StrategyZero {
		return chain.ZeroPlanner{Path: zeroSource}
	}
	return chain.FillerPlanner{}
}

// Build implements the [dali.AppBuilder] interface for [Config].
func Build(ctx context.Context, cfg Config) (dali.App, error) {
	log := slog.Default()

	endpoints, err := Endpoints(cfg.Dali, log)
	if err != nil {
		return nil, err
	}

	opts := []http.RuntimeOption{
		http.ListenOnPort(cfg.HTTP.Port),
		http.LogHandler(log.Handler()),
	}
	if cfg.HTTP.ShutdownTimeout > 0 {
		opts = append(opts, http.ShutdownTimeout(cfg.HTTP.ShutdownTimeout))
	}
	for _, ep := range endpoints {
		opts = append(opts, http.Handle(ep.Route.Pattern, ep.Handler))
	}

	if cfg.HTTP.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(cfg.HTTP.TLS.CertFile, cfg.HTTP.TLS.KeyFile)
		if err != nil {
			return nil, CertificateLoadError{
				CertFile: cfg.HTTP.TLS.CertFile,
				KeyFile:  cfg.HTTP.TLS.KeyFile,
				Cause:    err,
			}
		}
		opts = append(opts, http.TLSConfig(&tls.Config{
			Certificates: []tls.Certificate{cert},
		}))
	}
	if cfg.HTTP.H2C {
		opts = append(opts, http.H2C())
	}
	if cfg.HTTP.Http2Only {
		opts = append(opts, http.Http2Only())
	}

	rt, err := http.NewRuntime(opts...)
	if err != nil {
		return nil, err
	}

	return app.Recover(app.WithSignalNotifications(rt, os.Interrupt, syscall.SIGTERM)), nil
}
