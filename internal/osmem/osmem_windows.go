//go:build windows

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

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

type systemMapper struct{}

func (systemMapper) Map(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.Wrapf(err, "osmem: VirtualAlloc %d bytes", size)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func (systemMapper) Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return errors.Wrapf(err, "osmem: VirtualFree %d bytes", len(b))
	}
	return nil
}
