//go:build debug_malloc

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

// debugValidate runs Validate after every mutating call and panics on error.
// This method no-ops unless the debug_malloc build tag is present.
func (a *Allocator) debugValidate() {
	if err := a.Validate(); err != nil {
		panic(err)
	}
}

// debugCheckAllocated panics if h is not a live allocated arena block, which
// catches double frees and foreign pointers.
// This method no-ops unless the debug_malloc build tag is present.
func (a *Allocator) debugCheckAllocated(h *header) {
	if h.magic != magicArena {
		panic("malloc: free of an invalid block")
	}
	if h.state != stateUsed {
		panic("malloc: double free")
	}
}
