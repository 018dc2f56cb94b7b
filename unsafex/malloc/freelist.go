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

// freeList is an address-ordered doubly-linked list of free blocks of one
// order. Links are arena offsets stored in the block headers.
type freeList struct {
	head  int64
	tail  int64
	count int
}

func newFreeLists(maxOrder int) []freeList {
	lists := make([]freeList, maxOrder+1)
	for i := range lists {
		lists[i] = freeList{head: nilOffset, tail: nilOffset}
	}
	return lists
}

func (l *freeList) empty() bool {
	return l.head == nilOffset
}

// push inserts the free block at off into the list of its order, keeping the
// list sorted by address.
func (a *Allocator) push(order int, off int64) {
	l := &a.freeLists[order]
	h := a.arena.header(off)

	// find the first node with a higher address, appending is the common case
	// during init and after splits of the lowest block
	next := nilOffset
	if l.tail != nilOffset && l.tail > off {
		for cur := l.head; cur != nilOffset; cur = a.arena.header(cur).next {
			if cur > off {
				next = cur
				break
			}
		}
	}

	if next == nilOffset {
		h.prev = l.tail
		h.next = nilOffset
		if l.tail != nilOffset {
			a.arena.header(l.tail).next = off
		} else {
			l.head = off
		}
		l.tail = off
	} else {
		n := a.arena.header(next)
		h.prev = n.prev
		h.next = next
		if n.prev != nilOffset {
			a.arena.header(n.prev).next = off
		} else {
			l.head = off
		}
		n.prev = off
	}
	l.count++
}

// remove unlinks the block at off from the list of the given order.
func (a *Allocator) remove(order int, off int64) {
	l := &a.freeLists[order]
	h := a.arena.header(off)
	if h.prev != nilOffset {
		a.arena.header(h.prev).next = h.next
	} else {
		l.head = h.next
	}
	if h.next != nilOffset {
		a.arena.header(h.next).prev = h.prev
	} else {
		l.tail = h.prev
	}
	h.prev = nilOffset
	h.next = nilOffset
	l.count--
}
