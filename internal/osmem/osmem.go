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

// Package osmem provides the operating system memory primitives used by the
// allocator: one-off arena reservation and per-object anonymous mappings.
package osmem

import "github.com/cockroachdb/errors"

// Mapper reserves and releases memory regions.
//
// Map returns a writable region of exactly size bytes. Unmap must be called
// with the exact slice returned by Map.
type Mapper interface {
	Map(size int) ([]byte, error)
	Unmap(b []byte) error
}

// System returns the Mapper backed by anonymous OS mappings.
// On platforms without one it falls back to HeapMapper.
func System() Mapper {
	return systemMapper{}
}

func checkSize(size int) error {
	if size <= 0 {
		return errors.Newf("osmem: invalid mapping size %d", size)
	}
	return nil
}
