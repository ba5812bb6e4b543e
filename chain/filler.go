// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package chain

import (
	"sync"
	"unsafe"

	"github.com/bassosimone/runtimex"
	"github.com/z5labs/dali/lifecycle"
)

// BlockSize is the size of the shared filler block.
const BlockSize = 4096

const fillerPattern = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ+/"

var fillerBlock = sync.OnceValue(func() []byte {
	b := make([]byte, BlockSize)
	for i := range b {
		b[i] = fillerPattern[i%len(fillerPattern)]
	}
	return b
})

// FillerBlock returns the process wide filler block. It is built on first
// use and shared, read only, by every request. Callers must never modify it.
func FillerBlock() []byte {
	return fillerBlock()
}

var descriptorSize = int(unsafe.Sizeof(Descriptor{}))

// Planner builds the chain for a response body of n bytes. Resources the
// plan holds are released when scope closes.
type Planner interface {
	Plan(scope *lifecycle.Scope, n int64) (Chain, error)
}

// FillerPlanner plans bodies as repeated references to the filler block.
// Only the descriptors cost memory, the content itself is never copied.
type FillerPlanner struct{}

// Plan implements the [Planner] interface.
func (FillerPlanner) Plan(scope *lifecycle.Scope, n int64) (Chain, error) {
	if n <= 0 {
		return Chain{}, nil
	}

	full := n / BlockSize
	rem := n % BlockSize
	count := full
	if rem > 0 {
		count++
	}

	err := scope.Reserve(int(count) * descriptorSize)
	if err != nil {
		return Chain{}, err
	}

	block := FillerBlock()
	descs := make([]Descriptor, 0, count)
	for range full {
		descs = append(descs, Descriptor{Kind: KindFiller, Data: block})
	}
	if rem > 0 {
		descs = append(descs, Descriptor{Kind: KindFiller, Data: block[:rem]})
	}
	descs[len(descs)-1].Last = true

	c := newChain(descs)
	runtimex.Assert(c.Size() == n)
	return c, nil
}
