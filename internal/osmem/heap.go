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

package osmem

import "github.com/bytedance/gopkg/lang/dirtmake"

// HeapMapper serves regions from the Go heap. Regions are not zeroed and
// Unmap only drops the reference, the garbage collector reclaims the memory.
type HeapMapper struct{}

func (HeapMapper) Map(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	return dirtmake.Bytes(size, size), nil
}

func (HeapMapper) Unmap(b []byte) error {
	return nil
}
