// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"fmt"
	"net/http"
)

// ContentType is the content type of every synthetic response.
const ContentType = "application/octet-stream"

// Header describes the response head.
type Header struct {
	Status        int
	ContentType   string
	ContentLength int64

	// AllowRanges permits the host to answer byte range requests. It is
	// only set when the body supports reads at arbitrary offsets.
	AllowRanges bool
}

// HeaderTransmissionError occurs when the host fails to send the response
// head. The body is never sent after one.
type HeaderTransmissionError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e HeaderTransmissionError) Error() string {
	return fmt.Sprintf("failed to send response header: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e HeaderTransmissionError) Unwrap() error {
	return e.Cause
}

// OutputError occurs when the host fails to stream the response body,
// most commonly because the client went away.
type OutputError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e OutputError) Error() string {
	return fmt.Sprintf("failed to send response body: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e OutputError) Unwrap() error {
	return e.Cause
}

func (h *Handler) emit(req Request, rc *requestContext) (string, error) {
	err := req.SendHeader(Header{
		Status:        http.StatusOK,
		ContentType:   ContentType,
		ContentLength: rc.body.Size(),
		AllowRanges:   rc.body.RandomAccess(),
	})
	if err != nil {
		return phaseHeader, HeaderTransmissionError{Cause: err}
	}

	if req.HeadOnly() || rc.body.Len() == 0 {
		return phaseHeader, nil
	}

	err = req.Output(rc.body)
	if err != nil {
		return phaseOutput, OutputError{Cause: err}
	}
	return phaseOutput, nil
}
