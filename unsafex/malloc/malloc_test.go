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
	"bytes"
	"math"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/gomalloc/internal/osmem"
)

func TestLargeObjects(t *testing.T) {
	a := newTestAllocator(t)
	free := a.FreeBytes()

	b := a.Malloc(200000)
	require.NotNil(t, b)
	assert.Equal(t, 200000, len(b))
	assert.Equal(t, 200000, cap(b))
	assert.Equal(t, int64(-1), offsetOf(a, b))
	b[0], b[len(b)-1] = 1, 2

	assert.Equal(t, 1, a.AllocatedBlocks())
	assert.Equal(t, 200000, a.AllocatedBytes())
	assert.Equal(t, (DefaultArenaBlocks+1)*headerSize, a.MetadataBytes())
	assert.Equal(t, free, a.FreeBytes())
	assert.True(t, a.Stats().Conserved())
	assert.NoError(t, a.Validate())

	a.Free(b)
	assert.Equal(t, 0, a.AllocatedBlocks())
	assert.Equal(t, 0, a.AllocatedBytes())
	assert.Equal(t, DefaultArenaBlocks*headerSize, a.MetadataBytes())
	assertInitial(t, a)
}

func TestLargeThreshold(t *testing.T) {
	a := newTestAllocator(t)

	// the largest request still served by a root block
	b := a.Malloc(testMaxBlock - headerSize - 1)
	require.NotNil(t, b)
	assert.Equal(t, int64(0), offsetOf(a, b))
	assert.Equal(t, DefaultArenaBlocks-1, a.FreeBlocks())

	// header + size reaching the root size goes to a mapping
	l := a.Malloc(testMaxBlock - headerSize)
	require.NotNil(t, l)
	assert.Equal(t, int64(-1), offsetOf(a, l))
	assert.Equal(t, DefaultArenaBlocks-1, a.FreeBlocks())
	assert.Equal(t, 1, a.Stats().LargeObjects)

	a.Free(b)
	a.Free(l)
	assertInitial(t, a)
}

func TestLargeMapFails(t *testing.T) {
	m := &faultMapper{}
	a := newTestAllocator(t, WithMapper(m))
	before := a.Stats()

	m.failMap = true
	assert.Nil(t, a.Malloc(200000))
	_, err := a.TryMalloc(200000)
	assert.True(t, errors.Is(err, ErrMapFailed))
	assert.Equal(t, before, a.Stats())

	// the arena is unaffected
	assert.NotNil(t, a.Malloc(100))
	assert.NoError(t, a.Validate())
}

func TestLargeUnmapFails(t *testing.T) {
	m := &faultMapper{}
	a := newTestAllocator(t, WithMapper(m))

	b := a.Malloc(200000)
	require.NotNil(t, b)

	m.failUnmap = true
	a.Free(b)
	// still mapped, so still counted
	assert.Equal(t, 1, a.AllocatedBlocks())
	assert.Equal(t, 200000, a.AllocatedBytes())
	assert.NoError(t, a.Validate())

	m.failUnmap = false
	a.Free(b)
	assert.Equal(t, 0, a.AllocatedBlocks())
}

func TestCalloc(t *testing.T) {
	a := newTestAllocator(t)

	// dirty the first block
	d := a.Malloc(1000)
	for i := range d {
		d[i] = 0xff
	}
	a.Free(d)

	c := a.Calloc(10, 100)
	require.NotNil(t, c)
	assert.Equal(t, 1000, len(c))
	assert.Equal(t, offsetOf(a, d), offsetOf(a, c))
	assert.True(t, bytes.Equal(make([]byte, 1000), c))
	a.Free(c)

	l := a.Calloc(1000, 200)
	require.NotNil(t, l)
	assert.Equal(t, 200000, len(l))
	assert.True(t, bytes.Equal(make([]byte, 200000), l))
	a.Free(l)

	assert.Nil(t, a.Calloc(0, 10))
	assert.Nil(t, a.Calloc(10, 0))
	assert.Nil(t, a.Calloc(-1, 10))
	assert.Nil(t, a.Calloc(math.MaxInt, 2))
	assert.Nil(t, a.Calloc(DefaultMaxRequest, 2))
	assertInitial(t, a)
}

func TestRealloc(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		a := newTestAllocator(t)
		b := a.Realloc(nil, 100)
		require.NotNil(t, b)
		assert.Equal(t, 100, len(b))
		assert.Equal(t, 1, a.AllocatedBlocks())
	})

	t.Run("ContentRoundTrip", func(t *testing.T) {
		a := newTestAllocator(t)
		p := a.Malloc(4096)
		require.NotNil(t, p)
		pattern := make([]byte, 4096)
		rand.New(rand.NewSource(1)).Read(pattern)
		copy(p, pattern)

		q := a.Realloc(p, 8192)
		require.NotNil(t, q)
		assert.Equal(t, 8192, len(q))
		assert.Equal(t, pattern, q[:4096])
		assert.Equal(t, 1, a.AllocatedBlocks())
		assert.NoError(t, a.Validate())
	})

	t.Run("ShrinkKeepsBlock", func(t *testing.T) {
		a := newTestAllocator(t)
		p := a.Malloc(1000)
		require.NotNil(t, p)
		q := a.Realloc(p, 10)
		require.NotNil(t, q)
		assert.Equal(t, unsafe.Pointer(&p[0]), unsafe.Pointer(&q[0]))
		assert.Equal(t, 10, len(q))
		assert.Equal(t, cap(p), cap(q))
	})

	t.Run("GrowWithinBlock", func(t *testing.T) {
		a := newTestAllocator(t)
		p := a.Malloc(1000) // 2KB block
		q := a.Realloc(p, 2048-headerSize)
		require.NotNil(t, q)
		assert.Equal(t, unsafe.Pointer(&p[0]), unsafe.Pointer(&q[0]))
		assert.Equal(t, 2048-headerSize, len(q))
	})

	t.Run("InvalidSizeKeepsBlock", func(t *testing.T) {
		a := newTestAllocator(t)
		p := a.Malloc(100)
		copy(p, "hello")
		assert.Nil(t, a.Realloc(p, 0))
		assert.Nil(t, a.Realloc(p, -1))
		assert.Nil(t, a.Realloc(p, DefaultMaxRequest+1))
		assert.Equal(t, 1, a.AllocatedBlocks())
		assert.Equal(t, "hello", string(p[:5]))
		assert.NoError(t, a.Validate())
	})

	t.Run("FailedGrowthKeepsBlock", func(t *testing.T) {
		a := newTestAllocator(t, WithConfig(&Config{BaseUnit: 128, MaxOrder: 3, ArenaBlocks: 1, MaxRequest: 1 << 20}))
		p := a.Malloc(400) // one half of the arena
		q := a.Malloc(400) // the other half
		require.NotNil(t, p)
		require.NotNil(t, q)
		copy(p, "keep me")
		before := a.Stats()

		assert.Nil(t, a.Realloc(p, 900))
		assert.Equal(t, before, a.Stats())
		assert.Equal(t, "keep me", string(p[:7]))
	})

	t.Run("ArenaToLarge", func(t *testing.T) {
		a := newTestAllocator(t)
		p := a.Malloc(5000)
		for i := range p {
			p[i] = byte(i)
		}
		q := a.Realloc(p, 300000)
		require.NotNil(t, q)
		assert.Equal(t, int64(-1), offsetOf(a, q))
		for i := 0; i < 5000; i++ {
			require.Equal(t, byte(i), q[i])
		}
		assert.Equal(t, 1, a.AllocatedBlocks())
		assert.Equal(t, 300000, a.AllocatedBytes())

		// shrinking a large object keeps its mapping
		r := a.Realloc(q, 10)
		assert.Equal(t, unsafe.Pointer(&q[0]), unsafe.Pointer(&r[0]))
		a.Free(r)
		assertInitial(t, a)
	})

	t.Run("LargeMapFailureKeepsBlock", func(t *testing.T) {
		m := &faultMapper{}
		a := newTestAllocator(t, WithMapper(m))
		p := a.Malloc(100)
		m.failMap = true
		assert.Nil(t, a.Realloc(p, 300000))
		assert.Equal(t, 1, a.AllocatedBlocks())
		assert.NoError(t, a.Validate())
	})

	t.Run("Foreign", func(t *testing.T) {
		a := newTestAllocator(t)
		assert.Nil(t, a.Realloc(make([]byte, 10), 20))
		assertInitial(t, a)
	})
}

func TestCap(t *testing.T) {
	a := newTestAllocator(t)

	b := a.Malloc(10)
	assert.Equal(t, DefaultBaseUnit-headerSize, a.Cap(b))
	assert.Equal(t, DefaultBaseUnit-headerSize, a.Cap(b[:1]))

	l := a.Malloc(150000)
	assert.Equal(t, 150000, a.Cap(l))

	assert.Equal(t, 0, a.Cap(nil))
	assert.Equal(t, 0, a.Cap(make([]byte, 10)))

	// a slice starting inside a block is not a block
	m := a.Malloc(4000)
	require.NotNil(t, m)
	assert.Equal(t, 4096-headerSize, a.Cap(m))
	assert.Equal(t, 0, a.Cap(m[64:]))
	assert.Nil(t, a.Realloc(m[64:], 8000))
	assert.Equal(t, 0, a.Cap(l[64:]))

	a.Free(m)
	assert.Equal(t, 0, a.Cap(m))
	assert.Nil(t, a.Realloc(m, 8000))
	assert.NoError(t, a.Validate())
}

func TestHugeRequest(t *testing.T) {
	m := &faultMapper{failMap: true}
	cfg := DefaultConfig()
	cfg.MaxRequest = maxRequestLimit
	a, err := New(WithConfig(cfg), WithMapper(osmem.HeapMapper{}))
	require.NoError(t, err)
	defer a.Close()
	a.mapper = m // the arena is already reserved
	before := a.Stats()

	for _, size := range []int{maxRequestLimit, maxRequestLimit - 10, math.MaxInt / 2} {
		assert.True(t, a.isLarge(size), "size=%d", size)
		assert.NotPanics(t, func() { assert.Nil(t, a.Malloc(size)) }, "size=%d", size)
		_, err := a.TryMalloc(size)
		assert.True(t, errors.Is(err, ErrMapFailed), "size=%d", size)
	}
	assert.Nil(t, a.Malloc(math.MaxInt))
	assert.Equal(t, before, a.Stats())
	assert.NoError(t, a.Validate())
}

func TestStress(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := newTestAllocator(t)

	type live struct {
		b    []byte
		seed byte
	}
	var blocks []live

	randomSize := func() int {
		if rng.Intn(20) == 0 {
			// around and above the large-object threshold
			return testMaxBlock - headerSize - 64 + rng.Intn(100000)
		}
		return 1 + rng.Intn(1<<uint(rng.Intn(17)))
	}

	for i := 0; i < 10000; i++ {
		if len(blocks) == 0 || rng.Intn(2) == 0 {
			b := a.Malloc(randomSize())
			if b == nil {
				continue
			}
			seed := byte(i)
			b[0], b[len(b)-1] = seed, seed
			blocks = append(blocks, live{b, seed})
		} else {
			idx := rng.Intn(len(blocks))
			l := blocks[idx]
			require.Equal(t, l.seed, l.b[0])
			require.Equal(t, l.seed, l.b[len(l.b)-1])
			a.Free(l.b)
			blocks[idx] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
		}
		if i%500 == 0 {
			s := a.Stats()
			require.True(t, s.Conserved(), "op %d", i)
		}
	}
	require.NoError(t, a.Validate())

	for _, l := range blocks {
		a.Free(l.b)
	}

	assert.Equal(t, testFreeBytes, a.FreeBytes())
	assert.Equal(t, 0, a.AllocatedBlocks())
	assertInitial(t, a)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())

	free := FreeBytes()
	allocated := AllocatedBlocks()

	b := Malloc(100)
	require.NotNil(t, b)
	assert.Equal(t, allocated+1, AllocatedBlocks())

	b = Realloc(b, 5000)
	require.NotNil(t, b)
	c := Calloc(4, 25)
	require.NotNil(t, c)

	Free(b)
	Free(c)
	Free(nil)
	assert.Equal(t, free, FreeBytes())
	assert.Equal(t, allocated, AllocatedBlocks())
	assert.Equal(t, DefaultArenaBlocks*DefaultBaseUnit<<DefaultMaxOrder, FreeBytes()+AllocatedBytes()+MetadataBytes())
	assert.Equal(t, 32, HeaderSize())
}
