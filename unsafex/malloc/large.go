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
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// largeObjects tracks the dedicated mappings of oversized requests.
// Large objects are never listed in a free list and never merge.
type largeObjects struct {
	// mappings is keyed by the header address of each mapping, the value is
	// the region exactly as the mapper returned it.
	mappings *swiss.Map[uintptr, []byte]

	// count and bytes change in the same call as the map and unmap.
	count int
	bytes int
}

func newLargeObjects() largeObjects {
	return largeObjects{mappings: swiss.NewMap[uintptr, []byte](16)}
}

func (l *largeObjects) add(mem []byte, size int) {
	l.mappings.Put(uintptr(unsafe.Pointer(unsafe.SliceData(mem))), mem)
	l.count++
	l.bytes += size
}

func (l *largeObjects) lookup(key uintptr) ([]byte, bool) {
	return l.mappings.Get(key)
}

func (l *largeObjects) delete(key uintptr, size int) {
	l.mappings.Delete(key)
	l.count--
	l.bytes -= size
}

func (l *largeObjects) each(fn func(mem []byte)) {
	l.mappings.Iter(func(_ uintptr, mem []byte) bool {
		fn(mem)
		return false
	})
}

func largeHeader(mem []byte) *header {
	return (*header)(unsafe.Pointer(unsafe.SliceData(mem)))
}

// mapLarge serves size bytes from a dedicated mapping of exactly
// size + headerSize bytes.
func (a *Allocator) mapLarge(size int) ([]byte, error) {
	total := size + headerSize
	mem, err := a.mapper.Map(total)
	if err != nil {
		a.logger.Error("malloc: large object mapping failed",
			slog.Int("Size", size), slog.Any("error", err))
		return nil, errors.Mark(errors.Wrapf(err, "map %d bytes", total), ErrMapFailed)
	}

	*largeHeader(mem) = header{
		magic: magicLarge,
		state: stateUsed,
		size:  uint64(size),
		prev:  nilOffset,
		next:  nilOffset,
	}
	a.large.add(mem, size)

	a.logger.Debug("malloc: large object mapped",
		slog.Int("Size", size), slog.Int("LargeObjects", a.large.count))
	return mem[headerSize:total:total], nil
}

// largeMapping finds the mapping whose payload starts at p.
func (a *Allocator) largeMapping(p unsafe.Pointer) (key uintptr, mem []byte, ok bool) {
	key = uintptr(p) - uintptr(headerSize)
	mem, ok = a.large.lookup(key)
	return key, mem, ok
}

// unmapLarge destroys a large object. If the OS refuses, the object stays
// registered so the counters keep matching the live mappings.
func (a *Allocator) unmapLarge(key uintptr, mem []byte) {
	size := int(largeHeader(mem).size)
	if err := a.mapper.Unmap(mem); err != nil {
		a.logger.Error("malloc: large object unmap failed",
			slog.Int("Size", size), slog.Any("error", err))
		return
	}
	a.large.delete(key, size)

	a.logger.Debug("malloc: large object unmapped",
		slog.Int("Size", size), slog.Int("LargeObjects", a.large.count))
}
