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

// Statistics is a snapshot of the allocator, computed by a full scan.
type Statistics struct {
	// ArenaBytes is the size of the reserved arena.
	ArenaBytes int
	// HeaderSize is the metadata cost of each block.
	HeaderSize int

	FreeBlocks int
	FreeBytes  int

	// AllocatedBlocks and AllocatedBytes include large objects.
	AllocatedBlocks int
	AllocatedBytes  int

	// MetadataBytes is the header cost of every arena block and large object.
	MetadataBytes int

	LargeObjects int
	LargeBytes   int

	// FreeBlocksByOrder[o] is the number of free blocks of order o.
	FreeBlocksByOrder []int
}

// Conserved reports whether the arena bytes are fully accounted for by free
// payload, allocated payload and headers.
func (s Statistics) Conserved() bool {
	arenaAllocated := s.AllocatedBytes - s.LargeBytes
	arenaMetadata := s.MetadataBytes - s.LargeObjects*s.HeaderSize
	return s.FreeBytes+arenaAllocated+arenaMetadata == s.ArenaBytes
}

// walk visits every arena block in address order until fn returns false.
func (a *Allocator) walk(fn func(off int64, h *header) bool) {
	for off := int64(0); off < int64(a.arena.size); {
		h := a.arena.header(off)
		if !fn(off, h) || int(h.order) > a.cfg.MaxOrder {
			return
		}
		off += int64(a.blockSize(int(h.order)))
	}
}

// walkFree visits every block enqueued in the free list of order.
func (a *Allocator) walkFree(order int, fn func(off int64, h *header)) {
	for off := a.freeLists[order].head; off != nilOffset; {
		h := a.arena.header(off)
		fn(off, h)
		off = h.next
	}
}

// FreeBlocks returns the number of blocks in the free lists.
func (a *Allocator) FreeBlocks() int {
	n := 0
	for o := range a.freeLists {
		a.walkFree(o, func(int64, *header) { n++ })
	}
	return n
}

// FreeBytes returns the usable bytes of all free blocks.
func (a *Allocator) FreeBytes() int {
	n := 0
	for o := range a.freeLists {
		a.walkFree(o, func(_ int64, h *header) { n += int(h.size) })
	}
	return n
}

// AllocatedBlocks returns the number of live allocations, arena and large.
func (a *Allocator) AllocatedBlocks() int {
	n := 0
	a.walk(func(_ int64, h *header) bool {
		if !h.isFree() {
			n++
		}
		return true
	})
	return n + a.large.count
}

// AllocatedBytes returns the usable bytes of all live allocations, arena and large.
func (a *Allocator) AllocatedBytes() int {
	n := 0
	a.walk(func(_ int64, h *header) bool {
		if !h.isFree() {
			n += int(h.size)
		}
		return true
	})
	return n + a.large.bytes
}

// MetadataBytes returns the header bytes of every arena block and large object.
func (a *Allocator) MetadataBytes() int {
	n := 0
	a.walk(func(int64, *header) bool {
		n++
		return true
	})
	return (n + a.large.count) * headerSize
}

// HeaderSize returns the fixed per-block metadata size.
func (a *Allocator) HeaderSize() int {
	return headerSize
}

// Stats returns all counters from a single scan.
func (a *Allocator) Stats() Statistics {
	s := Statistics{
		ArenaBytes:        a.arena.size,
		HeaderSize:        headerSize,
		LargeObjects:      a.large.count,
		LargeBytes:        a.large.bytes,
		FreeBlocksByOrder: make([]int, a.cfg.MaxOrder+1),
	}
	blocks := 0
	a.walk(func(_ int64, h *header) bool {
		blocks++
		if !h.isFree() {
			s.AllocatedBlocks++
			s.AllocatedBytes += int(h.size)
		}
		return true
	})
	for o := range a.freeLists {
		a.walkFree(o, func(_ int64, h *header) {
			s.FreeBlocks++
			s.FreeBytes += int(h.size)
			s.FreeBlocksByOrder[o]++
		})
	}
	s.AllocatedBlocks += a.large.count
	s.AllocatedBytes += a.large.bytes
	s.MetadataBytes = (blocks + a.large.count) * headerSize
	return s
}
