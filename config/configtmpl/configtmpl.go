// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package configtmpl provides template functions for use in config templates.
package configtmpl

import (
	"os"
	"reflect"
)

// Env returns the value of the environment variable named key,
// or an empty string if it is not set.
func Env(key string) string {
	return os.Getenv(key)
}

// Default returns def if v is either nil or the zero value for its type.
// It takes def first so it reads naturally in a pipeline:
//
//	port: {{ env "DALI_PORT" | default 8080 }}
func Default(def, v any) any {
	if v == nil {
		return def
	}
	if reflect.ValueOf(v).IsZero() {
		return def
	}
	return v
}
