// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package appbuilder provides middleware for [dali.AppBuilder] implementations.
package appbuilder

import (
	"context"

	"github.com/z5labs/dali"
	"github.com/z5labs/dali/internal/try"
)

// Recover will wrap the given [dali.AppBuilder] with panic recovery.
func Recover[T any](builder dali.AppBuilder[T]) dali.AppBuilder[T] {
	return dali.AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ dali.App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}
