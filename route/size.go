// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package route

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is the value of a route's size directive. The zero value is unset,
// which is distinct from a size explicitly set to zero bytes.
type Size struct {
	n   int64
	set bool
}

// Bytes returns a set [Size] of n bytes.
func Bytes(n int64) Size {
	return Size{n: n, set: true}
}

// Value returns the number of bytes and whether the size was set at all.
func (s Size) Value() (int64, bool) {
	return s.n, s.set
}

// IsSet reports whether the size was declared.
func (s Size) IsSet() bool {
	return s.set
}

// String implements the [fmt.Stringer] interface.
func (s Size) String() string {
	if !s.set {
		return "unset"
	}
	return strconv.FormatInt(s.n, 10)
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface
// so sizes can be decoded straight from config.
func (s *Size) UnmarshalText(b []byte) error {
	v, err := ParseSize(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

var (
	errEmptySize    = errors.New("size must not be empty")
	errSizeOverflow = errors.New("size overflows a 64-bit signed integer")
)

// InvalidSizeError occurs when a size directive can not be parsed.
type InvalidSizeError struct {
	Value string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e InvalidSizeError) Error() string {
	return fmt.Sprintf("invalid size %q: %s", e.Value, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidSizeError) Unwrap() error {
	return e.Cause
}

// ParseSize parses a decimal byte count with an optional, case insensitive,
// k, m or g suffix scaling it by 1024, 1024^2 or 1024^3.
func ParseSize(v string) (Size, error) {
	s := strings.TrimSpace(v)
	if len(s) == 0 {
		return Size{}, InvalidSizeError{Value: v, Cause: errEmptySize}
	}

	scale := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		scale = 1 << 10
	case 'm', 'M':
		scale = 1 << 20
	case 'g', 'G':
		scale = 1 << 30
	}
	if scale > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return Size{}, InvalidSizeError{Value: v, Cause: err}
	}
	if n > uint64(math.MaxInt64/scale) {
		return Size{}, InvalidSizeError{Value: v, Cause: errSizeOverflow}
	}
	return Bytes(int64(n) * scale), nil
}

// Merge resolves a child scope's declared size against its parent's
// effective size. The smaller of the two set values wins and an unset
// value never displaces a set one.
func Merge(parent, child Size) Size {
	if !parent.set {
		return child
	}
	if !child.set || parent.n < child.n {
		return parent
	}
	return child
}

// RoundUp rounds a set size up to the next multiple of block.
// Unset sizes and a block of zero leave s unchanged.
func RoundUp(s Size, block int64) (Size, error) {
	if !s.set || block <= 0 {
		return s, nil
	}
	rem := s.n % block
	if rem == 0 {
		return s, nil
	}
	pad := block - rem
	if s.n > math.MaxInt64-pad {
		return Size{}, InvalidSizeError{Value: s.String(), Cause: errSizeOverflow}
	}
	return Bytes(s.n + pad), nil
}
