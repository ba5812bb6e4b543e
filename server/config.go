// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/z5labs/dali/config"
	"github.com/z5labs/dali/diag"
	"github.com/z5labs/dali/route"
)

//go:embed default_config.yaml
var defaultConfig []byte

// DefaultConfig returns the built in configuration. Sources read after it
// override its values.
func DefaultConfig() config.Source {
	return config.FromYaml(config.RenderTextTemplate(bytes.NewReader(defaultConfig)))
}

// Exporter selects where telemetry is exported to.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
	ExporterGCP    Exporter = "gcp"
)

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (e *Exporter) UnmarshalText(b []byte) error {
	switch v := Exporter(b); v {
	case ExporterNone, ExporterStdout, ExporterOTLP, ExporterGCP:
		*e = v
		return nil
	default:
		return fmt.Errorf("unknown telemetry exporter: %q", v)
	}
}

// TLSConfig names the certificate and key files served over TLS.
// TLS is disabled unless both are set.
type TLSConfig struct {
	CertFile string `config:"cert_file"`
	KeyFile  string `config:"key_file"`
}

// Enabled reports whether a certificate has been configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port            uint          `config:"port"`
	H2C             bool          `config:"h2c"`
	Http2Only       bool          `config:"http2_only"`
	ShutdownTimeout time.Duration `config:"shutdown_timeout"`
	TLS             TLSConfig     `config:"tls"`
}

// OTelConfig configures telemetry export.
type OTelConfig struct {
	ServiceName string   `config:"service_name"`
	Exporter    Exporter `config:"exporter"`

	// gRPC target of the OTLP collector.
	Target string `config:"target"`

	// Google Cloud project spans are exported to. Left empty, the
	// project is detected from the environment.
	ProjectID string `config:"project_id"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level slog.Level `config:"level"`
}

// DaliConfig configures the synthetic response routes. Its embedded
// [route.Route] is the server level scope every route inherits from.
type DaliConfig struct {
	route.Route `config:",squash"`

	BlockMultiple bool          `config:"block_multiple"`
	MaxScopeBytes int           `config:"max_scope_bytes"`
	ZeroSource    string        `config:"zero_source"`
	RateUnit      diag.RateUnit `config:"rate_unit"`
}

// Config is the complete server configuration.
type Config struct {
	HTTP    HTTPConfig    `config:"http"`
	OTel    OTelConfig    `config:"otel"`
	Logging LoggingConfig `config:"logging"`
	Dali    DaliConfig    `config:"dali"`
}
