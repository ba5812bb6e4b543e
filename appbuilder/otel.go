// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"
	"errors"

	"github.com/z5labs/dali"
	"github.com/z5labs/dali/app"
	"github.com/z5labs/dali/lifecycle"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
)

// OTelInitializer represents anything which can initialize the OTel SDK.
type OTelInitializer interface {
	InitializeOTel(context.Context) error
}

// OTel is a [dali.AppBuilder] middleware which initializes the OTel SDK.
// It also ensures that the OTel SDK is properly shutdown, flushing any
// buffered telemetry, when the built [dali.App] stops running.
//
// The providers are shutdown through the [lifecycle.Context] carried by ctx.
// Without one, a private [lifecycle.Context] is used and its hooks run
// when the built [dali.App] returns or the wrapped builder fails. Hooks
// the initializer registers run after the providers are shutdown.
func OTel[T OTelInitializer](builder dali.AppBuilder[T]) dali.AppBuilder[T] {
	return dali.AppBuilderFunc[T](func(ctx context.Context, cfg T) (dali.App, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lc, shared := lifecycle.FromContext(ctx)
		if !shared {
			lc = &lifecycle.Context{}
			ctx = lifecycle.NewContext(ctx, lc)
		}

		release := func(err error) error {
			if shared {
				return err
			}
			return errors.Join(err, lc.PostRun().Run(context.WithoutCancel(ctx)))
		}

		err := cfg.InitializeOTel(ctx)
		if err != nil {
			return nil, release(err)
		}

		lc.OnPostRun(lifecycle.MultiHook(
			tryShutdown(otel.GetTracerProvider()),
			tryShutdown(otel.GetMeterProvider()),
			tryShutdown(global.GetLoggerProvider()),
		))

		base, err := builder.Build(ctx, cfg)
		if err != nil {
			return nil, release(err)
		}
		if shared {
			return base, nil
		}
		return app.PostRun(base, lc.PostRun()), nil
	})
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func tryShutdown(v any) lifecycle.HookFunc {
	return func(ctx context.Context) error {
		s, ok := v.(shutdowner)
		if !ok {
			return nil
		}
		return s.Shutdown(ctx)
	}
}
