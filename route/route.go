// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package route resolves nested, route scoped size directives into
// the effective settings each request handler is built from.
//
// Routes form a tree. Every setting a route leaves unset is inherited
// from its nearest ancestor which sets it. Sizes are special: a child
// may only shrink the size it inherits, never grow it.
package route

import (
	"errors"
	"fmt"
)

// Strategy selects how a response body is materialized.
type Strategy string

const (
	// StrategyFiller repeats a shared, in memory filler block.
	StrategyFiller Strategy = "filler"

	// StrategyZero streams a window of an all zeros byte source.
	StrategyZero Strategy = "zero"
)

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (s *Strategy) UnmarshalText(b []byte) error {
	switch v := Strategy(b); v {
	case "", StrategyFiller, StrategyZero:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown response strategy: %q", v)
	}
}

// Intake selects how a request body is consumed.
type Intake string

const (
	// IntakeDiscard drains the request body before responding.
	IntakeDiscard Intake = "discard"

	// IntakeRead reads the request body asynchronously, timing the
	// read, and responds once it completes.
	IntakeRead Intake = "read"
)

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (i *Intake) UnmarshalText(b []byte) error {
	switch v := Intake(b); v {
	case "", IntakeDiscard, IntakeRead:
		*i = v
		return nil
	default:
		return fmt.Errorf("unknown body intake mode: %q", v)
	}
}

// Route is a declared route scope.
type Route struct {
	Pattern     string   `config:"pattern"`
	Size        Size     `config:"size"`
	Strategy    Strategy `config:"strategy"`
	Intake      Intake   `config:"intake"`
	Diagnostics *bool    `config:"diagnostics"`
	Routes      []Route  `config:"routes"`
}

// Effective is the fully resolved configuration of a single route.
type Effective struct {
	Pattern     string
	Bytes       int64
	Strategy    Strategy
	Intake      Intake
	Diagnostics bool
}

// ConfigurationError occurs when a route tree can not be resolved.
type ConfigurationError struct {
	Pattern string
	Cause   error
}

// Error implements the [builtin.error] interface.
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for route %q: %s", e.Pattern, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigurationError) Unwrap() error {
	return e.Cause
}

// ErrNoSize is the cause of a [ConfigurationError] for a route
// which neither declares nor inherits a size.
var ErrNoSize = errors.New("no size declared by the route or any enclosing scope")

// ErrDuplicatePattern is the cause of a [ConfigurationError] for a
// pattern which is declared more than once.
var ErrDuplicatePattern = errors.New("pattern declared more than once")

type resolveOptions struct {
	block int64
}

// ResolveOption configures [Resolve].
type ResolveOption func(*resolveOptions)

// BlockMultiple rounds every declared size up to a multiple of block
// before it is merged with its parent, so that merging compares the
// sizes which will actually be served.
func BlockMultiple(block int64) ResolveOption {
	return func(ro *resolveOptions) {
		ro.block = block
	}
}

type inherited struct {
	size        Size
	strategy    Strategy
	intake      Intake
	diagnostics bool
}

// Resolve walks the route tree depth first and returns the effective
// configuration of every route with a pattern. The root itself is only
// included when it has a pattern, otherwise it solely provides defaults.
func Resolve(root Route, opts ...ResolveOption) ([]Effective, error) {
	ro := &resolveOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	r := resolver{
		block: ro.block,
		seen:  make(map[string]struct{}),
	}
	err := r.walk(root, inherited{
		strategy: StrategyFiller,
		intake:   IntakeDiscard,
	})
	if err != nil {
		return nil, err
	}
	return r.routes, nil
}

type resolver struct {
	block  int64
	seen   map[string]struct{}
	routes []Effective
}

func (r *resolver) walk(rt Route, parent inherited) error {
	declared, err := RoundUp(rt.Size, r.block)
	if err != nil {
		return ConfigurationError{Pattern: rt.Pattern, Cause: err}
	}

	cur := inherited{
		size:        Merge(parent.size, declared),
		strategy:    parent.strategy,
		intake:      parent.intake,
		diagnostics: parent.diagnostics,
	}
	if rt.Strategy != "" {
		cur.strategy = rt.Strategy
	}
	if rt.Intake != "" {
		cur.intake = rt.Intake
	}
	if rt.Diagnostics != nil {
		cur.diagnostics = *rt.Diagnostics
	}

	if rt.Pattern != "" {
		err := r.add(rt.Pattern, cur)
		if err != nil {
			return err
		}
	}

	for _, child := range rt.Routes {
		err := r.walk(child, cur)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) add(pattern string, cur inherited) error {
	if _, exists := r.seen[pattern]; exists {
		return ConfigurationError{Pattern: pattern, Cause: ErrDuplicatePattern}
	}
	r.seen[pattern] = struct{}{}

	n, ok := cur.size.Value()
	if !ok {
		return ConfigurationError{Pattern: pattern, Cause: ErrNoSize}
	}

	r.routes = append(r.routes, Effective{
		Pattern:     pattern,
		Bytes:       n,
		Strategy:    cur.strategy,
		Intake:      cur.intake,
		Diagnostics: cur.diagnostics,
	})
	return nil
}
