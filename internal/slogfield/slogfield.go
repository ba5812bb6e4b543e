// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the attribute keys used across dali logs.
package slogfield

import (
	"log/slog"
	"time"
)

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Int64 returns an slog.Attr for a int64.
func Int64(key string, n int64) slog.Attr {
	return slog.Int64(key, n)
}

// Uint64 returns an slog.Attr for a uint64.
func Uint64(key string, n uint64) slog.Attr {
	return slog.Uint64(key, n)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Route returns the attribute identifying the route pattern a request matched.
func Route(pattern string) slog.Attr {
	return slog.String("route", pattern)
}

// TargetBytes returns the attribute for the configured response size.
func TargetBytes(n uint64) slog.Attr {
	return slog.Uint64("target_bytes", n)
}

// Phase returns the attribute naming the request phase a failure happened in.
func Phase(name string) slog.Attr {
	return slog.String("phase", name)
}
