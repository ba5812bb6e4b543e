// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package chain describes synthetic response bodies as ordered chains of
// buffer descriptors, so that N bytes can be served without holding N
// bytes in memory.
package chain

import (
	"io"
	"net"
)

// Kind identifies what backs a [Descriptor].
type Kind uint8

const (
	// KindFiller descriptors reference a window of the shared filler block.
	KindFiller Kind = iota + 1

	// KindZero descriptors reference a window of an all zeros source.
	KindZero

	// KindPayload descriptors own their bytes.
	KindPayload
)

// Descriptor is a single buffer of a [Chain].
type Descriptor struct {
	Kind Kind

	// Data is set for KindFiller and KindPayload descriptors.
	Data []byte

	// Source, Off and Len are set for KindZero descriptors.
	Source io.ReaderAt
	Off    int64
	Len    int64

	// Last marks the terminal descriptor of the chain.
	Last bool
}

// Size returns the number of body bytes the descriptor contributes.
func (d Descriptor) Size() int64 {
	if d.Kind == KindZero {
		return d.Len
	}
	return int64(len(d.Data))
}

// Chain is an ordered sequence of descriptors whose sizes sum to the
// response body length. A non-empty chain has exactly one terminal
// descriptor, its last one.
type Chain struct {
	descs []Descriptor
	size  int64
}

func newChain(descs []Descriptor) Chain {
	c := Chain{descs: descs}
	for _, d := range descs {
		c.size += d.Size()
	}
	return c
}

// Len returns the number of descriptors.
func (c Chain) Len() int {
	return len(c.descs)
}

// Size returns the total number of body bytes.
func (c Chain) Size() int64 {
	return c.size
}

// Descriptors returns the descriptors of the chain. The returned slice
// must not be modified.
func (c Chain) Descriptors() []Descriptor {
	return c.descs
}

// Prepend places an owned payload in front of the chain.
func (c *Chain) Prepend(payload []byte) {
	d := Descriptor{
		Kind: KindPayload,
		Data: payload,
		Last: len(c.descs) == 0,
	}
	descs := make([]Descriptor, 0, len(c.descs)+1)
	descs = append(descs, d)
	c.descs = append(descs, c.descs...)
	c.size += int64(len(payload))
}

// RandomAccess reports whether the chain is backed by a single source
// which supports reads at arbitrary offsets. Only such chains may be
// served as byte ranges.
func (c Chain) RandomAccess() bool {
	return len(c.descs) == 1 && c.descs[0].Kind == KindZero
}

// ReadSeeker returns a seekable view over a [Chain.RandomAccess] chain.
func (c Chain) ReadSeeker() (io.ReadSeeker, bool) {
	if !c.RandomAccess() {
		return nil, false
	}
	d := c.descs[0]
	return plainReader{io.NewSectionReader(d.Source, d.Off, d.Len)}, true
}

// plainReader hides the concrete type of a zero source. A character
// device like /dev/zero can not be sent with sendfile, so the transport
// must never see the underlying *os.File.
type plainReader struct {
	*io.SectionReader
}

const maxBatch = 64

// WriteTo implements the [io.WriterTo] interface. Runs of in memory
// descriptors are written as vectored [net.Buffers].
func (c Chain) WriteTo(w io.Writer) (int64, error) {
	var total int64
	batch := make(net.Buffers, 0, min(maxBatch, len(c.descs)))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		bufs := batch
		n, err := bufs.WriteTo(w)
		total += n
		batch = batch[:0]
		return err
	}

	for _, d := range c.descs {
		if d.Kind != KindZero {
			batch = append(batch, d.Data)
			if len(batch) < maxBatch {
				continue
			}
			err := flush()
			if err != nil {
				return total, err
			}
			continue
		}

		err := flush()
		if err != nil {
			return total, err
		}
		n, err := io.Copy(w, plainReader{io.NewSectionReader(d.Source, d.Off, d.Len)})
		total += n
		if err != nil {
			return total, err
		}
	}
	err := flush()
	return total, err
}
