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

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidSize is returned for zero, negative or over-cap requests.
	ErrInvalidSize = errors.New("malloc: invalid size")

	// ErrOutOfMemory is returned when no arena block of a sufficient order is free.
	ErrOutOfMemory = errors.New("malloc: arena exhausted")

	// ErrMapFailed is returned when a large-object mapping cannot be created.
	ErrMapFailed = errors.New("malloc: large object mapping failed")

	// ErrReserveFailed is returned by New when the arena cannot be reserved.
	ErrReserveFailed = errors.New("malloc: arena reservation failed")

	// ErrCorrupted is returned by Validate when an invariant does not hold.
	ErrCorrupted = errors.New("malloc: allocator state corrupted")

	// ErrClosed is returned once the allocator has released its arena.
	ErrClosed = errors.New("malloc: allocator closed")
)

// PowerOfTwoError is the error returned from Config.Validate if a size that must
// be a power of two is not.
var PowerOfTwoError = errors.New("number must be a power of two")

func checkPow2(number int, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}
