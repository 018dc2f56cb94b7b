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

import "math/bits"

// validSize reports whether size may be requested at all.
// It is checked before any allocator state is touched.
func (a *Allocator) validSize(size int) bool {
	return size > 0 && size <= a.cfg.MaxRequest
}

// isLarge reports whether a request of size payload bytes bypasses the arena.
func (a *Allocator) isLarge(size int) bool {
	return size >= a.maxBlockSize-headerSize
}

// getOrderForSize calculates the smallest order whose block, header included,
// holds size payload bytes. It uses bits.Len to find the smallest power of two
// that satisfies the request.
func (a *Allocator) getOrderForSize(size int) int {
	total := size + headerSize
	if total <= a.cfg.BaseUnit {
		return 0
	}
	return bits.Len(uint(total-1)) - a.baseShift
}

// blockSize is the size of an order block, header included.
func (a *Allocator) blockSize(order int) int {
	return a.cfg.BaseUnit << order
}
