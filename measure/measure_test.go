// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package measure

import (
	"bytes"
	"context"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/dali/diag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func serveBytes(n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(make([]byte, n))
	}
}

func TestRun(t *testing.T) {
	t.Run("will report a download", func(t *testing.T) {
		srv := httptest.NewServer(serveBytes(1000))
		defer srv.Close()

		report, err := Run(
			context.Background(),
			Config{URL: srv.URL},
			Clock(&stepClock{now: time.Unix(0, 0), step: 2 * time.Second}),
		)
		require.NoError(t, err)

		assert.Equal(t, Report{
			Status:        http.StatusOK,
			Proto:         "HTTP/1.1",
			BytesReceived: 1000,
			ElapsedMicros: 2_000_000,
			Rate:          500,
			RateUnit:      diag.BytesPerSecond,
		}, report)
	})

	t.Run("will report no elapsed time", func(t *testing.T) {
		t.Run("if the clock goes backwards", func(t *testing.T) {
			srv := httptest.NewServer(serveBytes(1000))
			defer srv.Close()

			report, err := Run(
				context.Background(),
				Config{URL: srv.URL},
				Clock(&stepClock{now: time.Unix(60, 0), step: -time.Second}),
			)
			require.NoError(t, err)

			assert.Equal(t, int64(1000), report.BytesReceived)
			assert.Equal(t, uint64(0), report.ElapsedMicros)
			assert.Equal(t, uint64(0), report.Rate)
		})
	})

	t.Run("will report an upload", func(t *testing.T) {
		var received atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n, _ := io.Copy(io.Discard, r.Body)
			received.Store(n)
		}))
		defer srv.Close()

		report, err := Run(
			context.Background(),
			Config{
				URL:         srv.URL,
				Method:      http.MethodPut,
				UploadBytes: 4 << 20,
				RateUnit:    diag.MebibytesPerSecond,
			},
			Clock(&stepClock{now: time.Unix(0, 0), step: time.Second}),
		)
		require.NoError(t, err)

		assert.Equal(t, int64(4<<20), received.Load())
		assert.Equal(t, int64(4<<20), report.BytesSent)
		assert.Equal(t, uint64(4), report.Rate)
		assert.Equal(t, diag.MebibytesPerSecond, report.RateUnit)
	})

	t.Run("will rewind the upload when retrying", func(t *testing.T) {
		var attempts atomic.Int32
		var lastReceived atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n, _ := io.Copy(io.Discard, r.Body)
			lastReceived.Store(n)
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}))
		defer srv.Close()

		var logs bytes.Buffer
		report, err := Run(
			context.Background(),
			Config{
				URL:         srv.URL,
				Method:      http.MethodPut,
				UploadBytes: 1 << 16,
				Retries:     3,
			},
			LogHandler(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, report.Status)
		assert.Equal(t, int32(3), attempts.Load())
		assert.Equal(t, int64(1<<16), lastReceived.Load())
		assert.Contains(t, logs.String(), `"http_client":"measure"`)
	})

	t.Run("will return the report with an unexpected status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		report, err := Run(context.Background(), Config{URL: srv.URL})

		var serr UnexpectedStatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusInternalServerError, serr.Code)
		assert.Equal(t, http.StatusInternalServerError, report.Status)
	})

	t.Run("will fail if the method is not supported", func(t *testing.T) {
		_, err := Run(context.Background(), Config{URL: "http://127.0.0.1", Method: http.MethodDelete})
		require.ErrorIs(t, err, ErrUnsupportedMethod)
	})

	t.Run("will fail if the server is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(serveBytes(1))
		srv.Close()

		_, err := Run(context.Background(), Config{URL: srv.URL})
		require.Error(t, err)
	})
}

func writeCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ca.pem")
	b := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestNewTransport(t *testing.T) {
	t.Run("will negotiate HTTP/2 over TLS", func(t *testing.T) {
		srv := httptest.NewUnstartedServer(serveBytes(10))
		srv.EnableHTTP2 = true
		srv.StartTLS()
		defer srv.Close()

		report, err := Run(context.Background(), Config{
			URL:       srv.URL,
			Transport: TransportConfig{CAFile: writeCA(t, srv), HTTP2: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "HTTP/2.0", report.Proto)
	})

	t.Run("will force HTTP/1.1 over TLS", func(t *testing.T) {
		srv := httptest.NewUnstartedServer(serveBytes(10))
		srv.EnableHTTP2 = true
		srv.StartTLS()
		defer srv.Close()

		report, err := Run(context.Background(), Config{
			URL:       srv.URL,
			Transport: TransportConfig{CAFile: writeCA(t, srv)},
		})
		require.NoError(t, err)
		assert.Equal(t, "HTTP/1.1", report.Proto)
	})

	t.Run("will speak cleartext HTTP/2", func(t *testing.T) {
		srv := httptest.NewServer(h2c.NewHandler(serveBytes(10), &http2.Server{}))
		defer srv.Close()

		report, err := Run(context.Background(), Config{
			URL:       srv.URL,
			Transport: TransportConfig{H2C: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "HTTP/2.0", report.Proto)
		assert.Equal(t, int64(10), report.BytesReceived)
	})

	t.Run("will fail if the ca file has no certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

		_, err := NewTransport(TransportConfig{CAFile: path})

		var cerr InvalidCAFileError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, path, cerr.Path)
	})

	t.Run("will fail if the ca file does not exist", func(t *testing.T) {
		_, err := NewTransport(TransportConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
