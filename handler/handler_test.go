// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/z5labs/dali/chain"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/intake"
	"github.com/z5labs/dali/lifecycle"
	"github.com/z5labs/dali/route"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeRequest struct {
	scope    *lifecycle.Scope
	headOnly bool

	discardErr error
	readN      int64
	readErr    error
	// readLater defers the body read continuation until release is called.
	readLater bool
	pending   func()

	headerErr error
	outputErr error

	headers   []Header
	outputs   []chain.Chain
	finalized []error
}

func newFakeRequest() *fakeRequest {
	return &fakeRequest{scope: lifecycle.NewScope()}
}

func (r *fakeRequest) Scope() *lifecycle.Scope { return r.scope }

func (r *fakeRequest) DiscardBody() error { return r.discardErr }

func (r *fakeRequest) ReadBody(cont func(n int64, err error)) {
	call := func() { cont(r.readN, r.readErr) }
	if r.readLater {
		r.pending = call
		return
	}
	call()
}

func (r *fakeRequest) release() {
	r.pending()
	// a second completion must be ignored
	r.pending()
}

func (r *fakeRequest) HeadOnly() bool { return r.headOnly }

func (r *fakeRequest) SendHeader(h Header) error {
	r.headers = append(r.headers, h)
	return r.headerErr
}

func (r *fakeRequest) Output(c chain.Chain) error {
	r.outputs = append(r.outputs, c)
	return r.outputErr
}

func (r *fakeRequest) Finalize(err error) {
	r.finalized = append(r.finalized, err)
}

type plannerFunc func(*lifecycle.Scope, int64) (chain.Chain, error)

func (f plannerFunc) Plan(s *lifecycle.Scope, n int64) (chain.Chain, error) {
	return f(s, n)
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func body(t *testing.T, c chain.Chain) []byte {
	t.Helper()

	var buf bytes.Buffer
	_, err := c.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHandler_Handle(t *testing.T) {
	t.Run("will send the filler body", func(t *testing.T) {
		t.Run("if the request body is discarded", func(t *testing.T) {
			h := New(route.Effective{Pattern: "/", Bytes: 10000}, chain.FillerPlanner{})
			req := newFakeRequest()

			outcome := h.Handle(context.Background(), req)
			if !assert.Equal(t, Done, outcome) {
				return
			}
			if !assert.Len(t, req.headers, 1) {
				return
			}
			hdr := req.headers[0]
			if !assert.Equal(t, http.StatusOK, hdr.Status) {
				return
			}
			if !assert.Equal(t, ContentType, hdr.ContentType) {
				return
			}
			if !assert.Equal(t, int64(10000), hdr.ContentLength) {
				return
			}
			if !assert.False(t, hdr.AllowRanges) {
				return
			}
			if !assert.Len(t, req.outputs, 1) {
				return
			}
			if !assert.Equal(t, 3, req.outputs[0].Len()) {
				return
			}
			if !assert.Equal(t, []error{nil}, req.finalized) {
				return
			}
		})
	})

	t.Run("will allow ranges", func(t *testing.T) {
		t.Run("if the body is a single zero descriptor", func(t *testing.T) {
			h := New(
				route.Effective{Pattern: "/", Bytes: 8192, Strategy: route.StrategyZero},
				chain.ZeroPlanner{},
			)
			req := newFakeRequest()

			h.Handle(context.Background(), req)
			if !assert.Len(t, req.headers, 1) {
				return
			}
			if !assert.True(t, req.headers[0].AllowRanges) {
				return
			}
			if !assert.Equal(t, make([]byte, 8192), body(t, req.outputs[0])) {
				return
			}
		})
	})

	t.Run("will not output a body", func(t *testing.T) {
		t.Run("if the request is head only", func(t *testing.T) {
			h := New(route.Effective{Pattern: "/", Bytes: 4096}, chain.FillerPlanner{})
			req := newFakeRequest()
			req.headOnly = true

			h.Handle(context.Background(), req)
			if !assert.Len(t, req.headers, 1) {
				return
			}
			if !assert.Equal(t, int64(4096), req.headers[0].ContentLength) {
				return
			}
			if !assert.Empty(t, req.outputs) {
				return
			}
			if !assert.Equal(t, []error{nil}, req.finalized) {
				return
			}
		})

		t.Run("if the target size is zero", func(t *testing.T) {
			h := New(route.Effective{Pattern: "/", Bytes: 0}, chain.FillerPlanner{})
			req := newFakeRequest()

			h.Handle(context.Background(), req)
			if !assert.Len(t, req.headers, 1) {
				return
			}
			if !assert.Zero(t, req.headers[0].ContentLength) {
				return
			}
			if !assert.Empty(t, req.outputs) {
				return
			}
			if !assert.Equal(t, []error{nil}, req.finalized) {
				return
			}
		})
	})

	t.Run("will prepend a diagnostic payload", func(t *testing.T) {
		t.Run("if diagnostics are enabled on a reading route", func(t *testing.T) {
			clock := &stepClock{now: time.Unix(0, 0), step: 2 * time.Second}
			h := New(
				route.Effective{
					Pattern:     "/upload",
					Bytes:       4096,
					Intake:      route.IntakeRead,
					Diagnostics: true,
				},
				chain.FillerPlanner{},
				Clock(clock),
				RateUnit(diag.MebibytesPerSecond),
			)
			req := newFakeRequest()
			req.readN = 4 << 20
			req.readLater = true

			outcome := h.Handle(context.Background(), req)
			if !assert.Equal(t, Pending, outcome) {
				return
			}
			if !assert.Empty(t, req.headers) {
				return
			}

			req.release()

			payloadLen := diag.Length(2_000_000, 4<<20, diag.MebibytesPerSecond)
			if !assert.Len(t, req.headers, 1) {
				return
			}
			if !assert.Equal(t, int64(4096+payloadLen), req.headers[0].ContentLength) {
				return
			}
			if !assert.Len(t, req.outputs, 1) {
				return
			}
			if !assert.Equal(t, []error{nil}, req.finalized) {
				return
			}

			b := body(t, req.outputs[0])
			if !assert.Len(t, b, 4096+payloadLen) {
				return
			}

			var payload struct {
				ElapsedMicros uint64 `json:"elapsed_us"`
				BytesRead     uint64 `json:"bytes_read"`
				Rate          uint64 `json:"rate"`
			}
			err := json.Unmarshal(b[:payloadLen], &payload)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, uint64(2_000_000), payload.ElapsedMicros) {
				return
			}
			if !assert.Equal(t, uint64(4<<20), payload.BytesRead) {
				return
			}
			if !assert.Equal(t, uint64(2), payload.Rate) {
				return
			}
			if !assert.Equal(t, chain.FillerBlock(), b[payloadLen:]) {
				return
			}
		})

		t.Run("if diagnostics are enabled on a discarding route", func(t *testing.T) {
			h := New(
				route.Effective{Pattern: "/", Bytes: 10, Diagnostics: true},
				chain.FillerPlanner{},
			)
			req := newFakeRequest()

			h.Handle(context.Background(), req)

			payloadLen := diag.Length(0, 0, diag.BytesPerSecond)
			if !assert.Len(t, req.headers, 1) {
				return
			}
			if !assert.Equal(t, int64(10+payloadLen), req.headers[0].ContentLength) {
				return
			}
			if !assert.False(t, req.headers[0].AllowRanges) {
				return
			}
		})
	})

	t.Run("will finalize with an error and never send headers", func(t *testing.T) {
		t.Run("if the request body can not be discarded", func(t *testing.T) {
			discardErr := errors.New("connection reset")
			h := New(route.Effective{Pattern: "/", Bytes: 10}, chain.FillerPlanner{})
			req := newFakeRequest()
			req.discardErr = discardErr

			outcome := h.Handle(context.Background(), req)
			if !assert.Equal(t, Done, outcome) {
				return
			}
			if !assert.Empty(t, req.headers) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var bre intake.BodyReadError
			if !assert.ErrorAs(t, req.finalized[0], &bre) {
				return
			}
			if !assert.Equal(t, "discard", bre.Mode) {
				return
			}
			if !assert.ErrorIs(t, req.finalized[0], discardErr) {
				return
			}
		})

		t.Run("if the request body read fails", func(t *testing.T) {
			readErr := errors.New("unexpected EOF")
			planned := false
			h := New(
				route.Effective{Pattern: "/", Bytes: 10, Intake: route.IntakeRead},
				plannerFunc(func(*lifecycle.Scope, int64) (chain.Chain, error) {
					planned = true
					return chain.Chain{}, nil
				}),
			)
			req := newFakeRequest()
			req.readErr = readErr

			outcome := h.Handle(context.Background(), req)
			if !assert.Equal(t, Pending, outcome) {
				return
			}
			if !assert.False(t, planned) {
				return
			}
			if !assert.Empty(t, req.headers) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}
			if !assert.ErrorIs(t, req.finalized[0], readErr) {
				return
			}
		})

		t.Run("if the zero source can not be opened", func(t *testing.T) {
			openErr := errors.New("no such file or directory")
			h := New(
				route.Effective{Pattern: "/", Bytes: 10, Strategy: route.StrategyZero},
				chain.ZeroPlanner{
					Path: "/missing",
					Open: func(string) (chain.File, error) {
						return nil, openErr
					},
				},
			)
			req := newFakeRequest()

			h.Handle(context.Background(), req)
			if !assert.Empty(t, req.headers) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var rue chain.ResourceUnavailableError
			if !assert.ErrorAs(t, req.finalized[0], &rue) {
				return
			}
			if !assert.ErrorIs(t, req.finalized[0], openErr) {
				return
			}
		})

		t.Run("if the descriptors exceed the scope memory limit", func(t *testing.T) {
			h := New(route.Effective{Pattern: "/", Bytes: 1 << 30}, chain.FillerPlanner{})
			req := newFakeRequest()
			req.scope = lifecycle.NewScope(lifecycle.MemoryLimit(1024))

			h.Handle(context.Background(), req)
			if !assert.Empty(t, req.headers) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var ae lifecycle.AllocationError
			if !assert.ErrorAs(t, req.finalized[0], &ae) {
				return
			}
		})

		t.Run("if the diagnostic payload exceeds the scope memory limit", func(t *testing.T) {
			h := New(
				route.Effective{Pattern: "/", Bytes: 0, Diagnostics: true},
				chain.FillerPlanner{},
			)
			req := newFakeRequest()
			req.scope = lifecycle.NewScope(lifecycle.MemoryLimit(8))

			h.Handle(context.Background(), req)
			if !assert.Empty(t, req.headers) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var ae lifecycle.AllocationError
			if !assert.ErrorAs(t, req.finalized[0], &ae) {
				return
			}
		})
	})

	t.Run("will not stream the body", func(t *testing.T) {
		t.Run("if the header fails to send", func(t *testing.T) {
			headerErr := errors.New("broken pipe")
			h := New(route.Effective{Pattern: "/", Bytes: 10}, chain.FillerPlanner{})
			req := newFakeRequest()
			req.headerErr = headerErr

			h.Handle(context.Background(), req)
			if !assert.Empty(t, req.outputs) {
				return
			}
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var hte HeaderTransmissionError
			if !assert.ErrorAs(t, req.finalized[0], &hte) {
				return
			}
			if !assert.ErrorIs(t, req.finalized[0], headerErr) {
				return
			}
		})
	})

	t.Run("will finalize with an output error", func(t *testing.T) {
		t.Run("if the client goes away while streaming", func(t *testing.T) {
			h := New(route.Effective{Pattern: "/", Bytes: 10}, chain.FillerPlanner{})
			req := newFakeRequest()
			req.outputErr = io.ErrClosedPipe

			h.Handle(context.Background(), req)
			if !assert.Len(t, req.finalized, 1) {
				return
			}

			var oe OutputError
			if !assert.ErrorAs(t, req.finalized[0], &oe) {
				return
			}
			if !assert.ErrorIs(t, req.finalized[0], io.ErrClosedPipe) {
				return
			}
		})
	})

	t.Run("will release the zero source exactly once", func(t *testing.T) {
		t.Run("if the client disconnects mid response", func(t *testing.T) {
			f := &countingFile{}
			h := New(
				route.Effective{Pattern: "/", Bytes: 10, Strategy: route.StrategyZero},
				chain.ZeroPlanner{
					Path: "/dev/zero",
					Open: func(string) (chain.File, error) {
						return f, nil
					},
				},
			)
			req := newFakeRequest()
			req.outputErr = io.ErrClosedPipe

			h.Handle(context.Background(), req)

			err := req.scope.Close(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			err = req.scope.Close(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, 1, f.closed) {
				return
			}
		})
	})
}

type countingFile struct {
	closed int
}

func (f *countingFile) ReadAt(p []byte, off int64) (int, error) {
	clear(p)
	return len(p), nil
}

func (f *countingFile) Close() error {
	f.closed++
	return nil
}

func TestHandler_metrics(t *testing.T) {
	t.Run("will count body bytes", func(t *testing.T) {
		t.Run("if the response succeeds", func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

			h := New(
				route.Effective{Pattern: "/", Bytes: 4096},
				chain.FillerPlanner{},
				MeterProvider(mp),
			)
			h.Handle(context.Background(), newFakeRequest())

			var rm metricdata.ResourceMetrics
			err := reader.Collect(context.Background(), &rm)
			if !assert.Nil(t, err) {
				return
			}

			var total int64
			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					if m.Name != "dali.response.body.size" {
						continue
					}
					sum, ok := m.Data.(metricdata.Sum[int64])
					if !assert.True(t, ok) {
						return
					}
					for _, dp := range sum.DataPoints {
						total += dp.Value
					}
				}
			}
			if !assert.Equal(t, int64(4096), total) {
				return
			}
		})
	})
}
