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
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/cloudwego/gomalloc/internal/osmem"
)

// arena is the single contiguous region backing every non-large block.
// Blocks are addressed by their offset from start.
type arena struct {
	// mem is the region as returned by the mapper, kept for release.
	mem []byte

	// start is a cached pointer to mem[0].
	start unsafe.Pointer

	size int
}

// reserveArena maps size bytes through m.
func reserveArena(m osmem.Mapper, size int) (arena, error) {
	mem, err := m.Map(size)
	if err != nil {
		return arena{}, errors.Mark(errors.Wrapf(err, "reserve %d bytes", size), ErrReserveFailed)
	}
	if len(mem) < size {
		_ = m.Unmap(mem)
		return arena{}, errors.Wrapf(ErrReserveFailed, "mapper returned %d of %d bytes", len(mem), size)
	}
	return arena{
		mem:   mem,
		start: unsafe.Pointer(unsafe.SliceData(mem)),
		size:  size,
	}, nil
}

// header returns the block header at offset.
func (r *arena) header(offset int64) *header {
	return (*header)(unsafe.Add(r.start, offset))
}

// payload returns the usable bytes of the block at offset, resliced to n.
func (r *arena) payload(offset int64, capacity, n int) []byte {
	p := (*byte)(unsafe.Add(r.start, int(offset)+headerSize))
	return unsafe.Slice(p, capacity)[:n]
}

// blockOffset maps a payload pointer back to its block offset.
// ok is false when p does not point into the arena.
func (r *arena) blockOffset(p unsafe.Pointer) (offset int64, ok bool) {
	if r.start == nil {
		return 0, false
	}
	d := uintptr(p) - uintptr(r.start)
	if uintptr(p) < uintptr(r.start) || d < uintptr(headerSize) || d >= uintptr(r.size) {
		return 0, false
	}
	return int64(d) - int64(headerSize), true
}

// liveBlock reports whether offset starts an allocated arena block.
func (a *Allocator) liveBlock(offset int64) bool {
	if offset%int64(a.cfg.BaseUnit) != 0 {
		return false
	}
	h := a.arena.header(offset)
	return h.magic == magicArena && h.state == stateUsed
}

// partition writes n free headers of the given order at blockSize stride.
// Pushing in increasing address order keeps every push O(1).
func (a *Allocator) partition(n, order, blockSize int) {
	for i := 0; i < n; i++ {
		off := int64(i * blockSize)
		a.arena.header(off).reset(order, blockSize, stateFree)
		a.push(order, off)
	}
}
