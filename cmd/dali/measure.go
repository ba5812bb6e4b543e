// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/internal/maskslog"
	"github.com/z5labs/dali/measure"

	"github.com/spf13/cobra"
)

func newMeasureCmd() *cobra.Command {
	var (
		cfg      = measure.Config{Method: http.MethodGet, RateUnit: diag.BytesPerSecond}
		rateUnit = string(diag.BytesPerSecond)
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "measure URL",
		Short: "Time a download or upload and print a JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cfg.RateUnit.UnmarshalText([]byte(rateUnit))
			if err != nil {
				return err
			}
			cfg.URL = args[0]

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logHandler := maskslog.NewHandler(
				slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}),
				maskslog.Attr("url", maskslog.URL),
			)

			report, runErr := measure.Run(cmd.Context(), cfg, measure.LogHandler(logHandler))
			if report.Status != 0 {
				enc := json.NewEncoder(cmd.OutOrStdout())
				err = enc.Encode(report)
				if err != nil {
					return err
				}
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Method, "method", "X", cfg.Method, "HTTP `METHOD`, GET or PUT")
	flags.Int64VarP(&cfg.UploadBytes, "bytes", "n", 1<<20, "number of bytes to upload with PUT")
	flags.StringVar(&cfg.Transport.CAFile, "cacert", "", "trust only the CA certificates in `FILE`")
	flags.BoolVarP(&cfg.Transport.HTTP2, "http2", "2", false, "negotiate HTTP/2 over TLS (default is HTTP/1.1)")
	flags.BoolVar(&cfg.Transport.H2C, "h2c", false, "speak cleartext HTTP/2 with prior knowledge")
	flags.IntVar(&cfg.Retries, "retries", 0, "retry failed requests up to `N` times")
	flags.DurationVar(&cfg.Timeout, "timeout", 0, "overall request timeout, 0 disables it")
	flags.StringVar(&rateUnit, "rate-unit", rateUnit, "unit the rate is reported in, B/s, KiB/s or MiB/s")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every request attempt")
	return cmd
}
