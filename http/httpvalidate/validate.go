// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpvalidate rejects HTTP requests before they reach a handler.
package httpvalidate

import (
	"net/http"
	"slices"
	"strings"
)

// Validator represents an http.Request validator. A validator which
// rejects a request is responsible for writing the response.
type Validator interface {
	Validate(http.ResponseWriter, *http.Request) bool
}

// ValidatorFunc implements Validator for funcs.
type ValidatorFunc func(http.ResponseWriter, *http.Request) bool

// Validate implements the [Validator] interface.
func (f ValidatorFunc) Validate(w http.ResponseWriter, r *http.Request) bool {
	return f(w, r)
}

// Handler is an http.Handler which applies request validators
// before passing the request to a wrapped http.Handler.
type Handler struct {
	validators []Validator
	base       http.Handler
}

// Request allows you to wrap a given http.Handler with request validators.
func Request(h http.Handler, validators ...Validator) *Handler {
	return &Handler{
		validators: validators,
		base:       h,
	}
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, validator := range h.validators {
		if !validator.Validate(w, req) {
			return
		}
	}
	h.base.ServeHTTP(w, req)
}

// ForMethods rejects requests whose method is not one of methods
// with 405 Method Not Allowed.
func ForMethods(methods ...string) Validator {
	allow := strings.Join(methods, ", ")
	return ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
		if slices.Contains(methods, r.Method) {
			return true
		}
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	})
}

// MinProto rejects requests whose protocol version is lower than
// major.minor with 505 HTTP Version Not Supported.
func MinProto(major, minor int) Validator {
	return ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
		if r.ProtoAtLeast(major, minor) {
			return true
		}
		w.WriteHeader(http.StatusHTTPVersionNotSupported)
		return false
	})
}
