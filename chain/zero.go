// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package chain

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/z5labs/dali/lifecycle"
)

// DevZero is the default zero source.
const DevZero = "/dev/zero"

// File is an opened zero source.
type File interface {
	io.ReaderAt
	io.Closer
}

// OpenFunc opens the named zero source read only.
type OpenFunc func(name string) (File, error)

func openFile(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ResourceUnavailableError occurs when the zero source can not be opened.
type ResourceUnavailableError struct {
	Path  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ResourceUnavailableError) Error() string {
	return fmt.Sprintf("failed to open zero source %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ResourceUnavailableError) Unwrap() error {
	return e.Cause
}

// Zeros is an in process all zeros source. It holds no file descriptor.
type Zeros struct{}

// ReadAt implements the [io.ReaderAt] interface.
func (Zeros) ReadAt(p []byte, off int64) (int, error) {
	clear(p)
	return len(p), nil
}

// Read implements the [io.Reader] interface. It never returns [io.EOF].
func (Zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// ZeroPlanner plans bodies as a single window of an all zeros source.
// The source is opened once per request and closed with the request
// scope, so its memory cost is constant regardless of the body size.
type ZeroPlanner struct {
	// Path of the zero source. Empty selects the in process [Zeros].
	Path string

	// Open defaults to opening Path with [os.Open].
	Open OpenFunc
}

// Plan implements the [Planner] interface.
func (p ZeroPlanner) Plan(scope *lifecycle.Scope, n int64) (Chain, error) {
	if n <= 0 {
		return Chain{}, nil
	}

	var src io.ReaderAt = Zeros{}
	if p.Path != "" {
		open := p.Open
		if open == nil {
			open = openFile
		}
		f, err := open(p.Path)
		if err != nil {
			return Chain{}, ResourceUnavailableError{Path: p.Path, Cause: err}
		}
		scope.OnClose(lifecycle.HookFunc(func(ctx context.Context) error {
			return f.Close()
		}))
		src = f
	}

	err := scope.Reserve(descriptorSize)
	if err != nil {
		return Chain{}, err
	}

	return newChain([]Descriptor{
		{
			Kind:   KindZero,
			Source: src,
			Off:    0,
			Len:    n,
			Last:   true,
		},
	}), nil
}
