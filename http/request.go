// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/z5labs/dali/chain"
	"github.com/z5labs/dali/handler"
	"github.com/z5labs/dali/lifecycle"
)

// request implements [handler.Request] on top of net/http. The pipeline
// never touches it concurrently, but it may move between goroutines when
// the body is read in the background.
type request struct {
	w     http.ResponseWriter
	r     *http.Request
	scope *lifecycle.Scope

	// rangeRequested defers the response head to [http.ServeContent].
	rangeRequested bool
	wroteHeader    bool
	header         handler.Header

	finalizeOnce sync.Once
	done         chan struct{}
}

func newRequest(w http.ResponseWriter, r *http.Request, scope *lifecycle.Scope) *request {
	return &request{
		w:     w,
		r:     r,
		scope: scope,
		done:  make(chan struct{}),
	}
}

func (req *request) Scope() *lifecycle.Scope {
	return req.scope
}

func (req *request) DiscardBody() error {
	_, err := io.Copy(io.Discard, req.r.Body)
	return err
}

func (req *request) ReadBody(cont func(n int64, err error)) {
	go func() {
		n, err := io.Copy(io.Discard, req.r.Body)
		cont(n, err)
	}()
}

func (req *request) HeadOnly() bool {
	return req.r.Method == http.MethodHead
}

func (req *request) SendHeader(hdr handler.Header) error {
	req.header = hdr

	h := req.w.Header()
	h.Set("Content-Type", hdr.ContentType)
	if hdr.AllowRanges {
		h.Set("Accept-Ranges", "bytes")
		if req.r.Header.Get("Range") != "" && !req.HeadOnly() {
			req.rangeRequested = true
			return req.r.Context().Err()
		}
	}

	req.writeHeader()
	return req.r.Context().Err()
}

func (req *request) writeHeader() {
	req.w.Header().Set("Content-Length", strconv.FormatInt(req.header.ContentLength, 10))
	req.w.WriteHeader(req.header.Status)
	req.wroteHeader = true
}

func (req *request) Output(c chain.Chain) error {
	if req.rangeRequested {
		rs, ok := c.ReadSeeker()
		if ok {
			req.wroteHeader = true
			http.ServeContent(req.w, req.r, "", time.Time{}, rs)
			return req.r.Context().Err()
		}
		req.writeHeader()
	}

	_, err := c.WriteTo(req.w)
	return err
}

func (req *request) Finalize(err error) {
	req.finalizeOnce.Do(func() {
		defer close(req.done)

		if err == nil || req.wroteHeader {
			return
		}
		h := req.w.Header()
		h.Del("Accept-Ranges")
		h.Del("Content-Length")
		http.Error(req.w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	})
}
