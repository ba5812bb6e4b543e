// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides middleware for [dali.App] implementations.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/dali"
	"github.com/z5labs/dali/internal/try"
	"github.com/z5labs/dali/lifecycle"
)

// Recover will wrap the given [dali.App] with panic recovery.
// A recovered panic is returned as a [try.PanicError], which
// unwraps to the panic value when it is an error.
func Recover(app dali.App) dali.App {
	return dali.AppFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// WithSignalNotifications wraps a given [dali.App] in an implementation
// that cancels the [context.Context] that's passed to app.Run if an [os.Signal]
// is received by the running process.
func WithSignalNotifications(app dali.App, signals ...os.Signal) dali.App {
	return dali.AppFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// PostRun wraps a given [dali.App] in an implementation which runs hook
// after app.Run returns, even if it failed or panicked.
func PostRun(app dali.App, hook lifecycle.Hook) dali.App {
	return dali.AppFunc(func(ctx context.Context) (err error) {
		defer runPostRunHook(ctx, hook, &err)

		return app.Run(ctx)
	})
}

func runPostRunHook(ctx context.Context, hook lifecycle.Hook, err *error) {
	if hook == nil {
		return
	}

	hookErr := hook.Run(context.WithoutCancel(ctx))

	// errors.Join will not return an error if both
	// *err and hookErr are nil.
	*err = errors.Join(*err, hookErr)
}
