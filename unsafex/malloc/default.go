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
	"os"
	"sync"

	"golang.org/x/exp/slog"
)

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the process-wide allocator, reserving its arena on first
// use. There is no allocator without its arena: if the reservation fails the
// process exits.
//
// The package-level functions use Default and share its lack of locking.
func Default() *Allocator {
	defaultOnce.Do(func() {
		a, err := New()
		if err != nil {
			slog.Default().Error("malloc: cannot reserve default arena", slog.Any("error", err))
			os.Exit(1)
		}
		defaultAllocator = a
	})
	return defaultAllocator
}

// Malloc calls Malloc on the default allocator.
func Malloc(size int) []byte {
	return Default().Malloc(size)
}

// Calloc calls Calloc on the default allocator.
func Calloc(count, size int) []byte {
	return Default().Calloc(count, size)
}

// Free calls Free on the default allocator.
func Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	Default().Free(b)
}

// Realloc calls Realloc on the default allocator.
func Realloc(b []byte, size int) []byte {
	return Default().Realloc(b, size)
}

// FreeBlocks calls FreeBlocks on the default allocator.
func FreeBlocks() int { return Default().FreeBlocks() }

// FreeBytes calls FreeBytes on the default allocator.
func FreeBytes() int { return Default().FreeBytes() }

// AllocatedBlocks calls AllocatedBlocks on the default allocator.
func AllocatedBlocks() int { return Default().AllocatedBlocks() }

// AllocatedBytes calls AllocatedBytes on the default allocator.
func AllocatedBytes() int { return Default().AllocatedBytes() }

// MetadataBytes calls MetadataBytes on the default allocator.
func MetadataBytes() int { return Default().MetadataBytes() }

// HeaderSize returns the fixed per-block metadata size.
func HeaderSize() int { return headerSize }
