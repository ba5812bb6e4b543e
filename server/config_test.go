// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/z5labs/dali/config"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/route"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConfig(t *testing.T, srcs ...config.Source) Config {
	t.Helper()

	m, err := config.Read(srcs...)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, m.Unmarshal(&cfg))
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Run("will decode the built in configuration", func(t *testing.T) {
		cfg := readConfig(t, DefaultConfig())

		assert.Equal(t, uint(8080), cfg.HTTP.Port)
		assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
		assert.False(t, cfg.HTTP.TLS.Enabled())
		assert.Equal(t, ExporterNone, cfg.OTel.Exporter)
		assert.Equal(t, "dali", cfg.OTel.ServiceName)
		assert.Empty(t, cfg.OTel.ProjectID)
		assert.Equal(t, slog.LevelInfo, cfg.Logging.Level)
		assert.Equal(t, 64<<20, cfg.Dali.MaxScopeBytes)
		assert.Equal(t, "/dev/zero", cfg.Dali.ZeroSource)
		assert.Equal(t, diag.BytesPerSecond, cfg.Dali.RateUnit)
		assert.Equal(t, route.StrategyFiller, cfg.Dali.Strategy)
		assert.Equal(t, route.IntakeDiscard, cfg.Dali.Intake)
		if !assert.Len(t, cfg.Dali.Routes, 1) {
			return
		}
		assert.Equal(t, "/", cfg.Dali.Routes[0].Pattern)
		assert.Equal(t, route.Bytes(1<<20), cfg.Dali.Routes[0].Size)
	})

	t.Run("will render environment variables", func(t *testing.T) {
		t.Setenv("DALI_PORT", "9090")
		t.Setenv("DALI_LOG_LEVEL", "DEBUG")
		t.Setenv("DALI_OTEL_EXPORTER", "stdout")

		cfg := readConfig(t, DefaultConfig())

		assert.Equal(t, uint(9090), cfg.HTTP.Port)
		assert.Equal(t, slog.LevelDebug, cfg.Logging.Level)
		assert.Equal(t, ExporterStdout, cfg.OTel.Exporter)
	})

	t.Run("will decode the gcp exporter", func(t *testing.T) {
		t.Setenv("DALI_OTEL_EXPORTER", "gcp")
		t.Setenv("DALI_GCP_PROJECT", "dali-test")

		cfg := readConfig(t, DefaultConfig())

		assert.Equal(t, ExporterGCP, cfg.OTel.Exporter)
		assert.Equal(t, "dali-test", cfg.OTel.ProjectID)
	})

	t.Run("will be overridden by later sources", func(t *testing.T) {
		cfg := readConfig(
			t,
			DefaultConfig(),
			config.FromYaml(strings.NewReader(`
dali:
  size: 4k
  rate_unit: KiB/s
  routes:
    - pattern: /zero
      strategy: zero
      routes:
        - pattern: /zero/small
          size: 512
`)),
		)

		assert.Equal(t, uint(8080), cfg.HTTP.Port)
		assert.Equal(t, diag.KibibytesPerSecond, cfg.Dali.RateUnit)
		assert.Equal(t, route.Bytes(4096), cfg.Dali.Size)
		if !assert.Len(t, cfg.Dali.Routes, 1) {
			return
		}
		zero := cfg.Dali.Routes[0]
		assert.Equal(t, route.StrategyZero, zero.Strategy)
		assert.False(t, zero.Size.IsSet())
		if !assert.Len(t, zero.Routes, 1) {
			return
		}
		assert.Equal(t, route.Bytes(512), zero.Routes[0].Size)
	})
}

func TestConfig_Unmarshal_Errors(t *testing.T) {
	testCases := []struct {
		Name string
		Yaml string
	}{
		{Name: "unknown exporter", Yaml: "otel:\n  exporter: zipkin\n"},
		{Name: "unknown rate unit", Yaml: "dali:\n  rate_unit: GB/s\n"},
		{Name: "unknown log level", Yaml: "logging:\n  level: LOUD\n"},
		{Name: "invalid size", Yaml: "dali:\n  size: 12q\n"},
		{Name: "unknown strategy", Yaml: "dali:\n  strategy: random\n"},
	}

	for _, testCase := range testCases {
		t.Run("will fail if "+testCase.Name, func(t *testing.T) {
			m, err := config.Read(DefaultConfig(), config.FromYaml(strings.NewReader(testCase.Yaml)))
			require.NoError(t, err)

			var cfg Config
			require.Error(t, m.Unmarshal(&cfg))
		})
	}
}
