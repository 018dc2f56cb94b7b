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

package workload

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/gomalloc/internal/osmem"
	"github.com/cloudwego/gomalloc/unsafex/malloc"
)

func newAllocator(t *testing.T, cfg *malloc.Config) *malloc.Allocator {
	t.Helper()
	opts := []malloc.Option{malloc.WithMapper(osmem.HeapMapper{})}
	if cfg != nil {
		opts = append(opts, malloc.WithConfig(cfg))
	}
	a, err := malloc.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRun(t *testing.T) {
	a := newAllocator(t, nil)
	cfg := DefaultConfig()
	cfg.Ops = 5000

	r, err := Run(a, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Ops, r.Ops)
	assert.Equal(t, cfg.Ops, r.Mallocs+r.Frees+r.Reallocs)
	// teardown frees are reported apart from the operations
	assert.LessOrEqual(t, r.Released, r.PeakLive)
	assert.Greater(t, r.Reallocs, 0)
	assert.Greater(t, r.Large, 0)
	assert.Greater(t, r.PeakLive, 0)

	assert.Equal(t, 0, r.Final.AllocatedBlocks)
	assert.Equal(t, 0, r.Final.LargeObjects)
	assert.Equal(t, a.Config().ArenaBlocks, r.Final.FreeBlocks)
	assert.True(t, r.Final.Conserved())
}

func TestRunDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ops = 2000
	cfg.Seed = 7

	r1, err := Run(newAllocator(t, nil), cfg, nil)
	require.NoError(t, err)
	r2, err := Run(newAllocator(t, nil), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	cfg.Seed = 8
	r3, err := Run(newAllocator(t, nil), cfg, nil)
	require.NoError(t, err)
	assert.NotEqual(t, r1.Mallocs, 0)
	assert.Equal(t, cfg.Ops, r3.Ops)
}

func TestRunExhaustion(t *testing.T) {
	mc := malloc.DefaultConfig()
	mc.ArenaBlocks = 1
	mc.MaxOrder = 4
	a := newAllocator(t, mc)

	cfg := DefaultConfig()
	cfg.Ops = 3000
	cfg.MaxSize = 1024
	cfg.LargeEvery = 0
	cfg.ReallocEvery = 4

	r, err := Run(a, cfg, nil)
	require.NoError(t, err)
	assert.Greater(t, r.Failed, 0)
	assert.Equal(t, 0, r.Large)
	assert.Equal(t, 1, r.Final.FreeBlocks)
}

func TestRunSharedAllocator(t *testing.T) {
	a := newAllocator(t, nil)
	held := a.Malloc(3000)
	require.NotNil(t, held)
	defer a.Free(held)

	cfg := DefaultConfig()
	cfg.Ops = 2000
	r, err := Run(a, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Final.AllocatedBlocks)
}

func TestRunInvalidConfig(t *testing.T) {
	a := newAllocator(t, nil)
	for _, cfg := range []*Config{
		{Ops: -1, MaxSize: 10},
		{Ops: 10, MaxSize: 0},
	} {
		_, err := Run(a, cfg, nil)
		assert.Error(t, err)
	}
}

func TestReportMerge(t *testing.T) {
	r := &Report{Ops: 10, Mallocs: 6, Frees: 4, Released: 2, PeakLive: 3, PeakBytes: 100}
	r.Final.FreeBlocks = 2
	r.Final.FreeBlocksByOrder = []int{0, 2}

	o := &Report{Ops: 5, Mallocs: 3, Frees: 2, Released: 1, PeakLive: 5, PeakBytes: 50, Failed: 1}
	o.Final.FreeBlocks = 3
	o.Final.FreeBlocksByOrder = []int{1, 0, 2}

	r.Merge(o)
	assert.Equal(t, 15, r.Ops)
	assert.Equal(t, 9, r.Mallocs)
	assert.Equal(t, 6, r.Frees)
	assert.Equal(t, 3, r.Released)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 5, r.PeakLive)
	assert.Equal(t, 100, r.PeakBytes)
	assert.Equal(t, 5, r.Final.FreeBlocks)
	assert.Equal(t, []int{1, 2, 2}, r.Final.FreeBlocksByOrder)
}

func TestVerify(t *testing.T) {
	r := &runner{}
	b := []byte("hello")
	blk := block{b: b, sum: 0}
	err := r.verify(blk)
	assert.True(t, errors.Is(err, ErrContentMismatch))
}
