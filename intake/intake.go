// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package intake consumes request bodies before a synthetic response is sent.
package intake

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a source of monotonic time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the monotonic clock through [time.Now].
type SystemClock struct{}

// Now implements the [Clock] interface.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// BodyReadError occurs when a request body can not be consumed.
type BodyReadError struct {
	Mode  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e BodyReadError) Error() string {
	return fmt.Sprintf("failed to %s request body: %s", e.Mode, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e BodyReadError) Unwrap() error {
	return e.Cause
}

// BodyDiscarder drains and discards a request body synchronously.
type BodyDiscarder interface {
	DiscardBody() error
}

// Discard drains the request body before returning.
func Discard(b BodyDiscarder) error {
	err := b.DiscardBody()
	if err != nil {
		return BodyReadError{Mode: "discard", Cause: err}
	}
	return nil
}

// BodyReader reads a request body in full, in the background, and reports
// the number of bytes read to cont once done.
type BodyReader interface {
	ReadBody(cont func(n int64, err error))
}

// Result describes a completed body read.
type Result struct {
	BytesRead int64
	Start     time.Time
	End       time.Time
	Err       error
}

// Elapsed returns how long the read took. It is never negative, even
// if the clock reported End before Start.
func (r Result) Elapsed() time.Duration {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}

// ReadAndContinue issues an asynchronous read of the whole request body
// and returns immediately. cont is invoked exactly once when the read
// completes, whether it succeeded or not.
func ReadAndContinue(r BodyReader, clock Clock, cont func(Result)) {
	var once sync.Once
	start := clock.Now()
	r.ReadBody(func(n int64, err error) {
		once.Do(func() {
			res := Result{
				BytesRead: n,
				Start:     start,
				End:       clock.Now(),
			}
			if err != nil {
				res.Err = BodyReadError{Mode: "read", Cause: err}
			}
			cont(res)
		})
	})
}
