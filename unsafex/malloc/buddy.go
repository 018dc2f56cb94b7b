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

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/cloudwego/gomalloc/internal/osmem"
)

// Allocator is a buddy system allocator over one fixed arena, with requests
// too big for the largest arena block served by dedicated OS mappings.
//
// An Allocator is not safe for concurrent use.
type Allocator struct {
	cfg    Config
	logger *slog.Logger
	mapper osmem.Mapper

	arena arena

	// freeLists[0] holds BaseUnit blocks, freeLists[MaxOrder] the largest.
	freeLists []freeList

	large largeObjects

	// maxBlockSize is BaseUnit << MaxOrder.
	maxBlockSize int
	// baseShift is log2(BaseUnit).
	baseShift int

	closed bool
}

// New reserves the arena and partitions it into ArenaBlocks free blocks of
// MaxOrder, enqueued in increasing address order.
func New(opts ...Option) (*Allocator, error) {
	o := options{
		config: DefaultConfig(),
		logger: slog.Default(),
		mapper: osmem.System(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	cfg := *o.config
	a := &Allocator{
		cfg:          cfg,
		logger:       o.logger,
		mapper:       o.mapper,
		freeLists:    newFreeLists(cfg.MaxOrder),
		large:        newLargeObjects(),
		maxBlockSize: cfg.MaxBlockSize(),
		baseShift:    bits.TrailingZeros(uint(cfg.BaseUnit)),
	}

	ar, err := reserveArena(a.mapper, cfg.ArenaSize())
	if err != nil {
		a.logger.Error("malloc: arena reservation failed",
			slog.Int("Bytes", cfg.ArenaSize()), slog.Any("error", err))
		return nil, err
	}
	a.arena = ar
	a.partition(cfg.ArenaBlocks, cfg.MaxOrder, a.maxBlockSize)

	a.logger.Debug("malloc: arena reserved",
		slog.Int("Bytes", cfg.ArenaSize()),
		slog.Int("Blocks", cfg.ArenaBlocks),
		slog.Int("MaxOrder", cfg.MaxOrder))
	return a, nil
}

// Config returns a copy of the layout the allocator was built with.
func (a *Allocator) Config() Config {
	return a.cfg
}

// Close releases the arena and every live large object. Slices returned by
// the allocator must not be used afterwards.
func (a *Allocator) Close() error {
	if a.closed {
		return ErrClosed
	}
	a.closed = true

	var errs error
	a.large.each(func(mem []byte) {
		if err := a.mapper.Unmap(mem); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	})
	a.large = newLargeObjects()

	if err := a.mapper.Unmap(a.arena.mem); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	a.arena = arena{}
	a.freeLists = newFreeLists(a.cfg.MaxOrder)
	return errs
}

// allocate takes the lowest-address free block of the first non-empty order
// in [order, MaxOrder], splits it down to order and marks it allocated.
// It returns false when the arena has no sufficient block.
func (a *Allocator) allocate(order int) (int64, bool) {
	found := -1
	for o := order; o <= a.cfg.MaxOrder; o++ {
		if !a.freeLists[o].empty() {
			found = o
			break
		}
	}
	if found == -1 {
		return 0, false
	}

	off := a.freeLists[found].head
	a.remove(found, off)

	// The lower half keeps the header, the upper half becomes a free buddy
	// of the new (lower) order.
	for found > order {
		a.split(off)
		found--
	}

	a.arena.header(off).state = stateUsed
	return off, true
}

// split halves the detached block at off. Splitting an order-0 block is a bug.
func (a *Allocator) split(off int64) {
	h := a.arena.header(off)
	if h.order == 0 {
		panic("malloc: split of order-0 block")
	}
	order := int(h.order) - 1
	half := a.blockSize(order)

	h.order = uint8(order)
	h.size = uint64(half - headerSize)

	upper := off + int64(half)
	a.arena.header(upper).reset(order, half, stateFree)
	a.push(order, upper)
}

// free returns the arena block at off and merges it with its buddies.
func (a *Allocator) free(off int64) {
	h := a.arena.header(off)
	h.state = stateFree
	a.push(int(h.order), off)
	a.coalesce(off)
}

// coalesce merges the free block at off with its buddy while the buddy is
// free and of the same order. The lower address survives.
func (a *Allocator) coalesce(off int64) {
	for {
		order := int(a.arena.header(off).order)
		if order >= a.cfg.MaxOrder {
			return
		}
		buddy, ok := a.freeBuddy(off, order)
		if !ok {
			return
		}

		a.remove(order, off)
		a.remove(order, buddy)
		if buddy < off {
			off, buddy = buddy, off
		}
		// the absorbed header is payload from now on
		a.arena.header(buddy).magic = 0

		merged := order + 1
		a.arena.header(off).reset(merged, a.blockSize(merged), stateFree)
		a.push(merged, off)
	}
}

// buddyOf derives the buddy of the order block at off from its address.
func (a *Allocator) buddyOf(off int64, order int) int64 {
	return off ^ int64(a.blockSize(order))
}

// freeBuddy returns the buddy of the block at off if it can be merged: inside
// the arena, a live arena header, free and at the same order.
//
// A block always starts at the buddy offset: the aligned region of the parent
// contains the block at off, so the buddy region is either one block or the
// first of its subdivisions.
func (a *Allocator) freeBuddy(off int64, order int) (int64, bool) {
	buddy := a.buddyOf(off, order)
	if buddy < 0 || buddy+int64(a.blockSize(order)) > int64(a.arena.size) {
		return 0, false
	}
	h := a.arena.header(buddy)
	if h.magic != magicArena || !h.isFree() || int(h.order) != order {
		return 0, false
	}
	return buddy, true
}
