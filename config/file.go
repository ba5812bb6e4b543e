// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
)

// FileReader is an io.Reader that opens its file on first read.
type FileReader struct {
	path string

	openOnce sync.Once
	openErr  error
	fs       fs.FS
	file     io.ReadCloser
}

// NewFileReader configures a FileReader.
func NewFileReader(fs fs.FS, path string) *FileReader {
	return &FileReader{
		path: path,
		fs:   fs,
	}
}

// Read implements the [io.Reader] interface.
func (r *FileReader) Read(b []byte) (int, error) {
	r.openOnce.Do(func() {
		r.file, r.openErr = r.fs.Open(r.path)
	})
	if r.openErr != nil {
		return 0, r.openErr
	}
	return r.file.Read(b)
}

// Close implements the [io.Closer] interface.
func (r *FileReader) Close() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil
	return err
}

// UnsupportedFileError occurs when a config file's extension does not
// name a known format.
type UnsupportedFileError struct {
	Path string
}

// Error implements the [builtin.error] interface.
func (e UnsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported config file extension: %s", e.Path)
}

// FromFile returns a source reading the file at name from fsys. The file
// is rendered as a text/template, with opts, before it is parsed as YAML
// or JSON according to its extension.
func FromFile(fsys fs.FS, name string, opts ...RenderTextTemplateOption) (Source, error) {
	r := RenderTextTemplate(NewFileReader(fsys, name), opts...)
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return FromYaml(r), nil
	case ".json":
		return FromJson(r), nil
	default:
		return nil, UnsupportedFileError{Path: name}
	}
}
