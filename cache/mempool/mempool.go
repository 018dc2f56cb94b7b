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

// Package mempool provides goroutine-safe []byte helpers backed by a buddy
// allocator. Buffers the allocator cannot serve fall back to the Go heap.
package mempool

import (
	"sync"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"golang.org/x/exp/slog"

	"github.com/cloudwego/gomalloc/unsafex/malloc"
)

// Pool serializes access to one malloc.Allocator.
type Pool struct {
	mu sync.Mutex
	a  *malloc.Allocator
}

// New returns a Pool over a. A nil a serves every buffer from the Go heap.
// The Pool must be the only user of a.
func New(a *malloc.Allocator) *Pool {
	return &Pool{a: a}
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

func getDefault() *Pool {
	defaultOnce.Do(func() {
		a, err := malloc.New()
		if err != nil {
			slog.Default().Warn("mempool: falling back to the Go heap", slog.Any("error", err))
		}
		defaultPool = New(a)
	})
	return defaultPool
}

// Malloc creates a buf of len size.
// Tips for usage:
// * buf returned by Malloc may not be initialized with zeros, use at your own risk.
// * call `Free` when buf is no longer use, DO NOT REUSE buf after calling `Free`
// * use `buf = buf[:mempool.Cap(buf)]` to make use of the cap of a returned buf.
// * DO NOT reslice the front of buf (buf[n:]) before calling `Free` or `Append`.
func (p *Pool) Malloc(size int) []byte {
	if size <= 0 {
		return []byte{}
	}
	if p.a != nil {
		p.mu.Lock()
		b := p.a.Malloc(size)
		p.mu.Unlock()
		if b != nil {
			return b
		}
	}
	return dirtmake.Bytes(size, size)
}

// Cap returns the max cap of a buf can be resized to.
func (p *Pool) Cap(buf []byte) int {
	if p.a != nil {
		p.mu.Lock()
		c := p.a.Cap(buf)
		p.mu.Unlock()
		if c > 0 {
			return c
		}
	}
	return cap(buf)
}

// Append appends bytes to the given `[]byte`.
// It grows `a` in place when its block allows, else moves it to a bigger one.
// Please make sure you're calling the func like `b = p.Append(b, data...)`
func (p *Pool) Append(a []byte, b ...byte) []byte {
	if len(a)+len(b) <= cap(a) {
		return append(a, b...)
	}
	ret := p.grow(a, len(a)+len(b))
	copy(ret[len(a):], b)
	return ret
}

// AppendStr ... same as Append for string.
// See comment of `Append` for details.
func (p *Pool) AppendStr(a []byte, b string) []byte {
	if len(a)+len(b) <= cap(a) {
		return append(a, b...)
	}
	ret := p.grow(a, len(a)+len(b))
	copy(ret[len(a):], b)
	return ret
}

// grow returns a buffer of len n starting with the contents of a.
func (p *Pool) grow(a []byte, n int) []byte {
	if p.a != nil {
		p.mu.Lock()
		ret := p.a.Realloc(a, n)
		p.mu.Unlock()
		if ret != nil {
			return ret
		}
	}
	// a is a heap buffer or the allocator is out of space
	ret := p.Malloc(n)
	copy(ret, a)
	p.Free(a)
	return ret
}

// Free should be called when a buf is no longer used.
// Heap buffers are left to the garbage collector.
func (p *Pool) Free(buf []byte) {
	if cap(buf) == 0 || p.a == nil {
		return
	}
	p.mu.Lock()
	p.a.Free(buf)
	p.mu.Unlock()
}

// Malloc calls Malloc on the default Pool.
func Malloc(size int) []byte {
	return getDefault().Malloc(size)
}

// Cap calls Cap on the default Pool.
func Cap(buf []byte) int {
	return getDefault().Cap(buf)
}

// Append calls Append on the default Pool.
func Append(a []byte, b ...byte) []byte {
	return getDefault().Append(a, b...)
}

// AppendStr calls AppendStr on the default Pool.
func AppendStr(a []byte, b string) []byte {
	return getDefault().AppendStr(a, b)
}

// Free calls Free on the default Pool.
func Free(buf []byte) {
	getDefault().Free(buf)
}
