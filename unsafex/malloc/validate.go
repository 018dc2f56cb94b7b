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
	"github.com/cockroachdb/errors"
)

func corrupted(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorrupted)
}

// Validate checks the allocator invariants with a full scan:
//   - arena blocks tile the arena, each aligned to its own size from the start
//   - every free block is in exactly the free list of its order, lists are
//     sorted by address and their links are consistent
//   - no free block has a free buddy of the same order below MaxOrder
//   - free payload, allocated payload and headers add up to the arena size
//   - the large object counters match the registered mappings
//
// The returned error matches ErrCorrupted.
func (a *Allocator) Validate() error {
	if a.closed {
		return ErrClosed
	}
	freeByOrder := make([]int, a.cfg.MaxOrder+1)
	var walkErr error
	accounted := 0
	a.walk(func(off int64, h *header) bool {
		if h.magic != magicArena {
			walkErr = corrupted("block %d: bad magic %#x", off, h.magic)
			return false
		}
		order := int(h.order)
		if order > a.cfg.MaxOrder {
			walkErr = corrupted("block %d: order %d above max %d", off, order, a.cfg.MaxOrder)
			return false
		}
		size := a.blockSize(order)
		if off%int64(size) != 0 || off+int64(size) > int64(a.arena.size) {
			walkErr = corrupted("block %d: misaligned for order %d", off, order)
			return false
		}
		if int(h.size) != size-headerSize {
			walkErr = corrupted("block %d: size %d for order %d", off, h.size, order)
			return false
		}
		switch h.state {
		case stateFree:
			freeByOrder[order]++
			if order < a.cfg.MaxOrder {
				if _, ok := a.freeBuddy(off, order); ok {
					walkErr = corrupted("block %d: free buddy left unmerged at order %d", off, order)
					return false
				}
			}
		case stateUsed:
		default:
			walkErr = corrupted("block %d: bad state %d", off, h.state)
			return false
		}
		accounted += size
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	if accounted != a.arena.size {
		return corrupted("blocks cover %d of %d arena bytes", accounted, a.arena.size)
	}

	for order := range a.freeLists {
		if err := a.validateFreeList(order, freeByOrder[order]); err != nil {
			return err
		}
	}

	if s := a.Stats(); !s.Conserved() {
		return corrupted("free %d + allocated %d + metadata %d != arena %d",
			s.FreeBytes, s.AllocatedBytes-s.LargeBytes, s.MetadataBytes-s.LargeObjects*headerSize, s.ArenaBytes)
	}

	return a.validateLarge()
}

func (a *Allocator) validateFreeList(order, want int) error {
	l := &a.freeLists[order]
	n := 0
	prev := nilOffset
	for off := l.head; off != nilOffset; {
		if off < 0 || off >= int64(a.arena.size) || off%int64(a.cfg.BaseUnit) != 0 {
			return corrupted("order %d: link %d outside the arena", order, off)
		}
		h := a.arena.header(off)
		if h.magic != magicArena || !h.isFree() || int(h.order) != order {
			return corrupted("order %d: block %d listed but not a free order %d block", order, off, order)
		}
		if h.prev != prev {
			return corrupted("order %d: block %d prev %d, want %d", order, off, h.prev, prev)
		}
		if prev != nilOffset && prev >= off {
			return corrupted("order %d: block %d listed after %d", order, off, prev)
		}
		n++
		if n > want {
			return corrupted("order %d: more than %d listed blocks", order, want)
		}
		prev = off
		off = h.next
	}
	if l.tail != prev {
		return corrupted("order %d: tail %d, want %d", order, l.tail, prev)
	}
	if n != want || l.count != want {
		return corrupted("order %d: %d listed (count %d), %d free in arena", order, n, l.count, want)
	}
	return nil
}

func (a *Allocator) validateLarge() error {
	count, bytes := 0, 0
	var err error
	a.large.each(func(mem []byte) {
		h := largeHeader(mem)
		if err == nil && (h.magic != magicLarge || int(h.size)+headerSize != len(mem)) {
			err = corrupted("large object of %d bytes: bad header", len(mem))
		}
		count++
		bytes += int(h.size)
	})
	if err != nil {
		return err
	}
	if count != a.large.count || bytes != a.large.bytes {
		return corrupted("large objects: %d (%d bytes) mapped, counters %d (%d bytes)",
			count, bytes, a.large.count, a.large.bytes)
	}
	return nil
}
