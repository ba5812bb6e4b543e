// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle provides helpers for defining actions to execute relative
// to the execution of a [dali.App] and of a single request.
package lifecycle

import (
	"context"
	"errors"
	"iter"
	"slices"
)

// Hook represents functionality that needs to be performed
// at a specific "time", e.g. after an app stops or when a request ends.
type Hook interface {
	Run(context.Context) error
}

// HookFunc is a func variant of the [Hook] interface.
type HookFunc func(context.Context) error

// Run implements the [Hook] interface.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// runAll runs every hook yielded by hooks, even after one fails,
// and joins their errors.
func runAll(ctx context.Context, hooks iter.Seq2[int, Hook]) error {
	var errs []error
	for _, h := range hooks {
		err := h.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

type multiHook []Hook

func (mh multiHook) Run(ctx context.Context) error {
	return runAll(ctx, slices.All(mh))
}

// MultiHook returns a [Hook] that's the logical concatenation
// of the provided [Hook]s. They're applied sequentially and every
// hook runs even if a previous one failed.
func MultiHook(hooks ...Hook) Hook {
	return multiHook(hooks)
}

// hookStack runs its hooks last in, first out, the same way
// deferred calls unwind.
type hookStack []Hook

func (hs *hookStack) push(h Hook) {
	*hs = append(*hs, h)
}

func (hs hookStack) Run(ctx context.Context) error {
	return runAll(ctx, slices.Backward(hs))
}

// Context allows users to set actions which should be performed
// after a [dali.App] Run method returns.
type Context struct {
	postRuns hookStack
}

// PostRun returns the composed [Hook] of everything registered with
// [Context.OnPostRun]. Hooks run in the reverse order of registration,
// so something registered early, e.g. a connection, outlives whatever
// was registered later on top of it.
func (c *Context) PostRun() Hook {
	return c.postRuns
}

// OnPostRun registers the given [Hook] to be executed after a [dali.App]
// Run method returns.
func (c *Context) OnPostRun(hook Hook) {
	c.postRuns.push(hook)
}

type key struct{}

var contextKey = &key{}

// NewContext returns a new [context.Context] containing the lifecycle [Context].
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey, c)
}

// FromContext tries to extract a lifecycle [Context] from the given [context.Context].
func FromContext(ctx context.Context) (*Context, bool) {
	lc, ok := ctx.Value(contextKey).(*Context)
	return lc, ok
}
