// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpclient provides the HTTP clients used to drive load
// against synthetic response routes.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/z5labs/dali/internal/slogfield"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type circuitOptions struct {
	maxRequests uint32
	interval    time.Duration
	timeout     time.Duration
	tripCount   uint32
	statusCodes []int
}

type retryOptions struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
}

type options struct {
	timeout time.Duration
	rt      http.RoundTripper

	name       string
	logHandler slog.Handler

	co *circuitOptions
	ro *retryOptions
}

// Option configures the client returned by [New].
type Option func(*options)

func withCircuitOption(f func(*circuitOptions)) Option {
	return func(o *options) {
		if o.co == nil {
			o.co = &circuitOptions{tripCount: 5}
		}
		f(o.co)
	}
}

// HalfOpenRequests is the number of requests let through while the
// circuit is half open.
func HalfOpenRequests(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.maxRequests = n
	})
}

// OpenStateTimeout is how long the circuit stays open before it
// becomes half open.
func OpenStateTimeout(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.timeout = d
	})
}

// CountResetInterval is how often failure counts are cleared while
// the circuit is closed.
func CountResetInterval(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.interval = d
	})
}

// TripAfter opens the circuit after n consecutive failures. Default is 5.
func TripAfter(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.tripCount = n
	})
}

// TripOnStatus counts responses with any of the given status codes as
// failures. Default is 500 and 503.
func TripOnStatus(codes ...int) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.statusCodes = append(co.statusCodes, codes...)
	})
}

// Retry retries failed requests up to maxRetries times, backing off
// exponentially between waitMin and waitMax.
func Retry(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(o *options) {
		o.ro = &retryOptions{
			maxRetries: maxRetries,
			waitMin:    waitMin,
			waitMax:    waitMax,
		}
	}
}

// Name identifies the client in logs and in the circuit breaker.
func Name(s string) Option {
	return func(o *options) {
		o.name = s
	}
}

// RoundTripper sets the base transport. Default is [http.DefaultTransport].
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.rt = rt
	}
}

// Timeout provides a global timeout value for the http.Client.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// LogHandler sets the handler requests and circuit changes are logged to.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// New returns an [http.Client] which traces and logs every request, and,
// when configured, guards them with a circuit breaker and retries.
func New(opts ...Option) *http.Client {
	o := newOptions(opts...)
	client := o.client()
	if o.ro == nil {
		return client
	}
	return o.retryable(client).StandardClient()
}

// NewRetryable is like [New] but returns the retrying client itself, so
// request bodies given as an [io.ReadSeeker] are rewound on retry instead
// of being buffered. It never retries unless [Retry] is given.
func NewRetryable(opts ...Option) *retryablehttp.Client {
	o := newOptions(opts...)
	if o.ro == nil {
		o.ro = &retryOptions{}
	}
	return o.retryable(o.client())
}

func newOptions(opts ...Option) *options {
	o := &options{
		rt:         http.DefaultTransport,
		logHandler: slog.DiscardHandler,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) logger() *slog.Logger {
	logger := slog.New(o.logHandler)
	if o.name != "" {
		logger = logger.With(slogfield.String("http_client", o.name))
	}
	return logger
}

func (o *options) client() *http.Client {
	logger := o.logger()

	var rt http.RoundTripper = &logRoundTripper{
		base: otelhttp.NewTransport(o.rt),
		log:  logger,
	}
	if o.co != nil {
		rt = newCircuitRoundTripper(o.name, rt, o.co, logger)
	}

	return &http.Client{
		Timeout:   o.timeout,
		Transport: rt,
	}
}

func (o *options) retryable(client *http.Client) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = client
	rc.Logger = o.logger()
	rc.RetryWaitMin = o.ro.waitMin
	rc.RetryWaitMax = o.ro.waitMax
	rc.RetryMax = o.ro.maxRetries
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type logRoundTripper struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (rt *logRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	rt.log.DebugContext(
		ctx,
		"request sent",
		slogfield.String("url", req.URL.String()),
	)
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		rt.log.WarnContext(
			ctx,
			"request failed",
			slogfield.String("url", req.URL.String()),
			slogfield.Error(err),
		)
		return nil, err
	}
	rt.log.DebugContext(
		ctx,
		"response received",
		slogfield.String("url", req.URL.String()),
		slogfield.Int("status_code", resp.StatusCode),
		slogfield.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

// StatusCodeError is counted as a circuit breaker failure but never
// returned to callers, which receive the response itself.
type StatusCodeError struct {
	Code int
}

// Error implements the [builtin.error] interface.
func (e StatusCodeError) Error() string {
	return fmt.Sprintf("unexpected http status code: %d", e.Code)
}

type circuitRoundTripper struct {
	base        http.RoundTripper
	cb          *gobreaker.CircuitBreaker
	statusCodes []int
}

func newCircuitRoundTripper(name string, base http.RoundTripper, co *circuitOptions, log *slog.Logger) *circuitRoundTripper {
	codes := co.statusCodes
	if len(codes) == 0 {
		codes = []int{http.StatusInternalServerError, http.StatusServiceUnavailable}
	}

	return &circuitRoundTripper{
		base:        base,
		statusCodes: codes,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: co.maxRequests,
			Interval:    co.interval,
			Timeout:     co.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= co.tripCount
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				switch to {
				case gobreaker.StateOpen:
					log.Error("circuit has been opened")
				case gobreaker.StateHalfOpen:
					log.Warn(
						"circuit is now half open and letting some requests through",
						slogfield.Uint64("max_requests_allowed_through", uint64(co.maxRequests)),
					)
				case gobreaker.StateClosed:
					log.Info("circuit has been closed")
				}
			},
		}),
	}
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := rt.cb.Execute(func() (any, error) {
		var err error
		resp, err = rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if slices.Contains(rt.statusCodes, resp.StatusCode) {
			return nil, StatusCodeError{Code: resp.StatusCode}
		}
		return nil, nil
	})

	var serr StatusCodeError
	if errors.As(err, &serr) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
