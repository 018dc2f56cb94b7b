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

import "unsafe"

const (
	// magicArena marks the header of a block living inside the arena.
	magicArena uint32 = 0xB0DD1E5

	// magicLarge marks the header of a dedicated large-object mapping.
	magicLarge uint32 = 0xB16B10C

	stateFree uint8 = 1
	stateUsed uint8 = 2

	// nilOffset terminates free lists.
	nilOffset int64 = -1
)

// header prefixes every block. For arena blocks prev and next are the arena
// offsets of the neighbours in the free list of the block's order and are only
// meaningful while the block is free.
//
// Layout: [4 magic][1 order][1 state][2 pad][8 size][8 prev][8 next]
type header struct {
	magic uint32
	order uint8
	state uint8
	_     uint16
	size  uint64 // usable payload bytes
	prev  int64
	next  int64
}

// headerSize is the fixed metadata cost of every block.
const headerSize = int(unsafe.Sizeof(header{}))

func (h *header) isFree() bool {
	return h.state == stateFree
}

// reset rewrites h as a detached arena block of the given order.
func (h *header) reset(order int, blockSize int, state uint8) {
	*h = header{
		magic: magicArena,
		order: uint8(order),
		state: state,
		size:  uint64(blockSize - headerSize),
		prev:  nilOffset,
		next:  nilOffset,
	}
}
