// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package key names locations in a nested config tree.
package key

import (
	"strings"
)

// Keyer is implemented by every config key.
type Keyer interface {
	Key() string
}

// Chain is a path of keys from the root of the config tree.
type Chain []Keyer

// Key implements the [Keyer] interface. Segments are joined with a ".".
func (k Chain) Key() string {
	ss := make([]string, len(k))
	for i := range k {
		ss[i] = k[i].Key()
	}
	return strings.Join(ss, ".")
}

// Name is a single key.
type Name string

// Key implements the [Keyer] interface.
func (k Name) Key() string {
	return string(k)
}
