// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpvalidate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_ServeHTTP(t *testing.T) {
	t.Run("will not run base handler", func(t *testing.T) {
		t.Run("if any validator fails", func(t *testing.T) {
			called := false
			h := Request(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					called = true
				}),
				ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
					return true
				}),
				ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
					w.WriteHeader(http.StatusTeapot)
					return false
				}),
			)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if !assert.False(t, called) {
				return
			}
			if !assert.Equal(t, http.StatusTeapot, w.Code) {
				return
			}
		})
	})

	t.Run("will run base handler", func(t *testing.T) {
		t.Run("if all validators pass", func(t *testing.T) {
			h := Request(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				}),
				ForMethods(http.MethodGet),
				MinProto(1, 1),
			)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if !assert.Equal(t, http.StatusNoContent, w.Code) {
				return
			}
		})
	})
}

func TestForMethods(t *testing.T) {
	t.Run("will return 405 status code", func(t *testing.T) {
		t.Run("if request method is not in given list", func(t *testing.T) {
			v := ForMethods(http.MethodGet, http.MethodHead)

			w := httptest.NewRecorder()
			ok := v.Validate(w, httptest.NewRequest(http.MethodPost, "/", nil))
			if !assert.False(t, ok) {
				return
			}
			if !assert.Equal(t, http.StatusMethodNotAllowed, w.Code) {
				return
			}
			if !assert.Equal(t, "GET, HEAD", w.Header().Get("Allow")) {
				return
			}
		})
	})
}

func TestMinProto(t *testing.T) {
	t.Run("will return 505 status code", func(t *testing.T) {
		t.Run("if the request protocol is too old", func(t *testing.T) {
			v := MinProto(2, 0)

			w := httptest.NewRecorder()
			ok := v.Validate(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if !assert.False(t, ok) {
				return
			}
			if !assert.Equal(t, http.StatusHTTPVersionNotSupported, w.Code) {
				return
			}
		})
	})

	t.Run("will pass", func(t *testing.T) {
		t.Run("if the request protocol is new enough", func(t *testing.T) {
			v := MinProto(2, 0)

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Proto, r.ProtoMajor, r.ProtoMinor = "HTTP/2.0", 2, 0

			w := httptest.NewRecorder()
			if !assert.True(t, v.Validate(w, r)) {
				return
			}
		})
	})
}
