/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package malloc

import (
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Malloc allocates a block of at least size bytes. The returned slice has
// len == size and cap == the usable capacity of the block.
// It returns nil for a zero, negative or over-cap size, when the arena is
// exhausted, or when a large-object mapping fails.
func (a *Allocator) Malloc(size int) []byte {
	b, _ := a.malloc(size)
	return b
}

// TryMalloc is like Malloc but reports why the request failed.
// The error matches ErrInvalidSize, ErrOutOfMemory, ErrMapFailed or ErrClosed.
func (a *Allocator) TryMalloc(size int) ([]byte, error) {
	b, err := a.malloc(size)
	if err != nil {
		return nil, errors.Wrapf(err, "malloc %d bytes", size)
	}
	return b, nil
}

func (a *Allocator) malloc(size int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if !a.validSize(size) {
		return nil, ErrInvalidSize
	}
	if a.isLarge(size) {
		b, err := a.mapLarge(size)
		if err != nil {
			return nil, err
		}
		a.debugValidate()
		return b, nil
	}

	order := a.getOrderForSize(size)
	off, ok := a.allocate(order)
	if !ok {
		a.logger.Debug("malloc: arena exhausted", slog.Int("Size", size), slog.Int("Order", order))
		return nil, ErrOutOfMemory
	}
	a.debugValidate()
	return a.arena.payload(off, a.blockSize(order)-headerSize, size), nil
}

// Calloc allocates count*size zeroed bytes. It returns nil if the product
// overflows or is not a valid request.
func (a *Allocator) Calloc(count, size int) []byte {
	if count < 0 || size < 0 {
		return nil
	}
	hi, lo := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || lo > uint64(a.cfg.MaxRequest) {
		return nil
	}
	b, err := a.malloc(int(lo))
	if err != nil {
		return nil
	}
	clear(b)
	return b
}

// Free returns b to the allocator. Freeing a nil or empty slice is a no-op.
//
// IMPORTANT: b must start where the slice returned by Malloc, Calloc or
// Realloc started. Freeing anything else, or freeing twice, is undefined.
func (a *Allocator) Free(b []byte) {
	if cap(b) == 0 || a.closed {
		return
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	if off, ok := a.arena.blockOffset(p); ok {
		a.debugCheckAllocated(a.arena.header(off))
		a.free(off)
		a.debugValidate()
		return
	}
	if key, mem, ok := a.largeMapping(p); ok {
		a.unmapLarge(key, mem)
		a.debugValidate()
		return
	}
	a.logger.Debug("malloc: free of a block not owned by this allocator")
}

// Realloc resizes b to size bytes.
//
// A nil b behaves as Malloc(size). If size is invalid, or a bigger block
// cannot be obtained, Realloc returns nil and b stays allocated and unchanged.
// If the block of b already holds size bytes the same block is returned,
// resliced to size. Otherwise the contents are copied to a new block and b is
// freed.
func (a *Allocator) Realloc(b []byte, size int) []byte {
	if cap(b) == 0 {
		return a.Malloc(size)
	}
	if a.closed || !a.validSize(size) {
		return nil
	}
	capacity, ok := a.capacity(b)
	if !ok {
		return nil
	}
	block := unsafe.Slice(unsafe.SliceData(b), capacity)
	if size <= capacity {
		return block[:size]
	}

	nb, err := a.malloc(size)
	if err != nil {
		return nil
	}
	copy(nb, block)
	a.Free(b)
	return nb
}

// Cap returns the usable capacity of the block b starts, or 0 if b does not
// start a live block of this allocator.
func (a *Allocator) Cap(b []byte) int {
	if cap(b) == 0 || a.closed {
		return 0
	}
	c, _ := a.capacity(b)
	return c
}

func (a *Allocator) capacity(b []byte) (int, bool) {
	p := unsafe.Pointer(unsafe.SliceData(b))
	if off, ok := a.arena.blockOffset(p); ok {
		if !a.liveBlock(off) {
			return 0, false
		}
		return int(a.arena.header(off).size), true
	}
	if _, mem, ok := a.largeMapping(p); ok {
		return int(largeHeader(mem).size), true
	}
	return 0, false
}
