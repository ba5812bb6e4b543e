// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// AllocationError is returned by [Scope.Reserve] when a reservation
// would exceed the scope's memory budget.
type AllocationError struct {
	Requested int
	Reserved  int
	Limit     int
}

// Error implements the [builtin.error] interface.
func (e AllocationError) Error() string {
	return fmt.Sprintf(
		"scope memory exhausted: requested %d bytes with %d of %d already reserved",
		e.Requested,
		e.Reserved,
		e.Limit,
	)
}

// ScopeOption configures a [Scope].
type ScopeOption func(*Scope)

// MemoryLimit bounds the total number of bytes which may be reserved
// from the scope. A limit of zero or less means unlimited.
func MemoryLimit(n int) ScopeOption {
	return func(s *Scope) {
		s.limit = n
	}
}

// Scope is the resource boundary of a single request. Resources acquired
// while serving the request register their release with [Scope.OnClose]
// and the owner of the request guarantees [Scope.Close] is called on every
// exit path. Close only ever runs the hooks once.
//
// A Scope must not be shared between requests.
type Scope struct {
	limit    int
	reserved int
	hooks    hookStack

	closeOnce sync.Once
	closeErr  error
}

// NewScope returns an open [Scope].
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnClose registers a hook to be ran when the scope closes.
// Hooks run in the reverse order of their registration.
func (s *Scope) OnClose(hook Hook) {
	s.hooks.push(hook)
}

// Reserve accounts n bytes of scope-lifetime memory against the budget.
func (s *Scope) Reserve(n int) error {
	if n < 0 {
		return fmt.Errorf("scope reservation must not be negative: %d", n)
	}
	if s.limit > 0 && n > s.limit-s.reserved {
		return AllocationError{
			Requested: n,
			Reserved:  s.reserved,
			Limit:     s.limit,
		}
	}
	s.reserved += n
	return nil
}

// Reserved returns the number of bytes reserved so far.
func (s *Scope) Reserved() int {
	return s.reserved
}

// Close runs every registered hook exactly once, even if some of them
// fail, and returns their joined errors. Subsequent calls return the
// result of the first.
func (s *Scope) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.hooks.Run(ctx)
		s.hooks = nil
	})
	return s.closeErr
}
