// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package measure times a single transfer against a dali server.
package measure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/dali/chain"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/http/httpclient"
	"github.com/z5labs/dali/intake"
	"github.com/z5labs/dali/internal/slogfield"

	"github.com/hashicorp/go-retryablehttp"
)

// Config describes the transfer to measure.
type Config struct {
	URL string

	// Method is either GET, which downloads the response body, or PUT,
	// which uploads UploadBytes zeros.
	Method      string
	UploadBytes int64

	Transport TransportConfig

	Retries  int
	Timeout  time.Duration
	RateUnit diag.RateUnit
}

// Report summarizes a measured transfer.
type Report struct {
	Status        int           `json:"status"`
	Proto         string        `json:"proto"`
	BytesSent     int64         `json:"bytes_sent"`
	BytesReceived int64         `json:"bytes_received"`
	ElapsedMicros uint64        `json:"elapsed_us"`
	Rate          uint64        `json:"rate"`
	RateUnit      diag.RateUnit `json:"rate_unit"`
}

// ErrUnsupportedMethod is returned for methods other than GET and PUT.
var ErrUnsupportedMethod = errors.New("only GET and PUT can be measured")

// UnexpectedStatusError is returned, along with the report, when the
// server does not respond with a 2xx status.
type UnexpectedStatusError struct {
	Code int
}

// Error implements the [builtin.error] interface.
func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected http status code: %d", e.Code)
}

type options struct {
	clock      intake.Clock
	logHandler slog.Handler
	rt         http.RoundTripper
}

// Option configures [Run].
type Option func(*options)

// Clock sets the clock the transfer is timed with.
func Clock(c intake.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// LogHandler sets the handler progress is logged to.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// RoundTripper overrides the transport built from [Config.Transport].
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.rt = rt
	}
}

// Run performs the transfer and reports how long it took. The elapsed
// time covers sending the request through draining the response body.
func Run(ctx context.Context, cfg Config, opts ...Option) (Report, error) {
	o := &options{
		clock:      intake.SystemClock{},
		logHandler: slog.DiscardHandler,
	}
	for _, opt := range opts {
		opt(o)
	}
	log := slog.New(o.logHandler)

	var body any
	var sent int64
	switch cfg.Method {
	case "", http.MethodGet:
		cfg.Method = http.MethodGet
	case http.MethodPut:
		sent = max(cfg.UploadBytes, 0)
		body = io.NewSectionReader(chain.Zeros{}, 0, sent)
	default:
		return Report{}, ErrUnsupportedMethod
	}
	unit := cfg.RateUnit
	if unit == "" {
		unit = diag.BytesPerSecond
	}

	rt := o.rt
	if rt == nil {
		var err error
		rt, err = NewTransport(cfg.Transport)
		if err != nil {
			return Report{}, err
		}
	}

	client := httpclient.NewRetryable(
		httpclient.Name("measure"),
		httpclient.RoundTripper(rt),
		httpclient.Retry(cfg.Retries, 100*time.Millisecond, 2*time.Second),
		httpclient.Timeout(cfg.Timeout),
		httpclient.LogHandler(o.logHandler),
	)

	req, err := retryablehttp.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return Report{}, err
	}
	if cfg.Method == http.MethodPut {
		req.ContentLength = sent
	}

	log.InfoContext(ctx, "request", slogfield.String("method", cfg.Method), slogfield.String("url", cfg.URL))

	start := o.clock.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()

	log.InfoContext(
		ctx,
		"response",
		slogfield.Int("status", resp.StatusCode),
		slogfield.String("proto", resp.Proto),
	)

	received, err := io.Copy(io.Discard, resp.Body)
	end := o.clock.Now()
	if err != nil {
		return Report{}, err
	}

	elapsed := uint64(intake.Result{Start: start, End: end}.Elapsed().Microseconds())
	transferred := uint64(received)
	if cfg.Method == http.MethodPut {
		transferred = uint64(sent)
	}

	report := Report{
		Status:        resp.StatusCode,
		Proto:         resp.Proto,
		BytesSent:     sent,
		BytesReceived: received,
		ElapsedMicros: elapsed,
		Rate:          diag.Rate(elapsed, transferred, unit),
		RateUnit:      unit,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return report, UnexpectedStatusError{Code: resp.StatusCode}
	}
	return report, nil
}
