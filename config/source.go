// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/z5labs/dali/internal/try"

	"gopkg.in/yaml.v3"
)

// InvalidFormatError occurs if a source's underlying io.Reader does not
// contain a valid document of the expected format.
type InvalidFormatError struct {
	Format string
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidFormatError) Unwrap() error {
	return e.Cause
}

type document struct {
	r         io.Reader
	format    string
	unmarshal func([]byte, any) error
}

// FromYaml returns a source which will apply its config
// from YAML values parsed from the given io.Reader.
func FromYaml(r io.Reader) Source {
	return document{r: r, format: "yaml", unmarshal: yaml.Unmarshal}
}

// FromJson returns a source which will apply its config
// from JSON values parsed from the given io.Reader.
func FromJson(r io.Reader) Source {
	return document{r: r, format: "json", unmarshal: json.Unmarshal}
}

// Apply implements the [Source] interface. The reader is closed
// afterwards if it implements [io.Closer].
func (src document) Apply(store Store) (err error) {
	defer try.Close(&err, src.r)

	b, err := io.ReadAll(src.r)
	if err != nil {
		return err
	}

	m := make(map[string]any)
	err = src.unmarshal(b, &m)
	if err != nil {
		return InvalidFormatError{Format: src.format, Cause: err}
	}
	return Map(m).Apply(store)
}
