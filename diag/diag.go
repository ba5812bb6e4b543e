// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package diag encodes the diagnostic payload which can be prepended to a
// synthetic response body to report how long reading the request took.
package diag

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/bassosimone/runtimex"
)

// RateUnit is the unit the transfer rate is reported in.
type RateUnit string

const (
	BytesPerSecond     RateUnit = "B/s"
	KibibytesPerSecond RateUnit = "KiB/s"
	MebibytesPerSecond RateUnit = "MiB/s"
)

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (u *RateUnit) UnmarshalText(b []byte) error {
	switch v := RateUnit(b); v {
	case BytesPerSecond, KibibytesPerSecond, MebibytesPerSecond:
		*u = v
		return nil
	default:
		return fmt.Errorf("unknown rate unit: %q", v)
	}
}

func (u RateUnit) divisor() uint64 {
	switch u {
	case KibibytesPerSecond:
		return 1 << 10
	case MebibytesPerSecond:
		return 1 << 20
	default:
		return 1
	}
}

const format = `{"elapsed_us":%d,"bytes_read":%d,"rate":%d,"rate_unit":%q}` + "\n"

// Rate returns bytesRead per second, scaled to unit. It is zero for a zero
// duration and saturates instead of overflowing.
func Rate(durationMicros, bytesRead uint64, unit RateUnit) uint64 {
	if durationMicros == 0 {
		return 0
	}
	hi, lo := bits.Mul64(bytesRead, 1_000_000)
	if hi >= durationMicros {
		return math.MaxUint64 / unit.divisor()
	}
	q, _ := bits.Div64(hi, lo, durationMicros)
	return q / unit.divisor()
}

type counter int

func (c *counter) Write(p []byte) (int, error) {
	*c += counter(len(p))
	return len(p), nil
}

// Length returns the exact length of the payload [Encode] produces for
// the same arguments, without allocating it.
func Length(durationMicros, bytesRead uint64, unit RateUnit) int {
	var c counter
	fmt.Fprintf(&c, format, durationMicros, bytesRead, Rate(durationMicros, bytesRead, unit), unit)
	return int(c)
}

// Encode formats the diagnostic payload into a buffer of exactly the
// length reported by [Length].
func Encode(durationMicros, bytesRead uint64, unit RateUnit) []byte {
	n := Length(durationMicros, bytesRead, unit)
	b := fmt.Appendf(
		make([]byte, 0, n),
		format,
		durationMicros,
		bytesRead,
		Rate(durationMicros, bytesRead, unit),
		unit,
	)
	runtimex.Assert(len(b) == n && cap(b) == n)
	return b
}
