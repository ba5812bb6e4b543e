// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package measure

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"os"

	"golang.org/x/net/http2"
)

// TransportConfig selects how the server is connected to.
type TransportConfig struct {
	// CAFile is a PEM bundle of the only roots trusted. Empty uses the
	// system roots.
	CAFile string

	// HTTP2 negotiates HTTP/2 over TLS. Without it HTTP/1.1 is forced.
	HTTP2 bool

	// H2C speaks cleartext HTTP/2 with prior knowledge.
	H2C bool
}

// InvalidCAFileError occurs when the CA file contains no certificates.
type InvalidCAFileError struct {
	Path string
}

// Error implements the [builtin.error] interface.
func (e InvalidCAFileError) Error() string {
	return "no certificates found in ca file: " + e.Path
}

// NewTransport returns a transport tuned for bulk transfers.
func NewTransport(cfg TransportConfig) (http.RoundTripper, error) {
	if cfg.H2C {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}, nil
	}

	tlsConfig := &tls.Config{}
	if cfg.CAFile != "" {
		b, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(b) {
			return nil, InvalidCAFileError{Path: cfg.CAFile}
		}
		tlsConfig.RootCAs = pool
	}
	if !cfg.HTTP2 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	t := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   tlsConfig,
		ForceAttemptHTTP2: cfg.HTTP2,
	}
	if cfg.HTTP2 {
		h2, err := http2.ConfigureTransports(t)
		if err != nil {
			return nil, err
		}
		h2.ReadIdleTimeout = 0
		h2.StrictMaxConcurrentStreams = false
	}
	return t, nil
}
