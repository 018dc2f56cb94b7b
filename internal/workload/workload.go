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

// Package workload drives an allocator with a seeded random mix of
// allocations, reallocations and frees, checking block contents and byte
// conservation along the way.
package workload

import (
	"math/bits"
	"math/rand"

	"github.com/bytedance/gopkg/util/xxhash3"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/cloudwego/gomalloc/unsafex/malloc"
)

var (
	// ErrContentMismatch means a live block changed while the workload owned it.
	ErrContentMismatch = errors.New("workload: block content changed")

	// ErrNotConserved means the arena bytes stopped adding up.
	ErrNotConserved = errors.New("workload: arena bytes not conserved")

	// ErrLeak means the allocator did not return to its starting state.
	ErrLeak = errors.New("workload: allocator did not return to its starting state")
)

// Config describes a workload.
type Config struct {
	Seed int64
	Ops  int
	// MaxSize bounds arena-sized requests, sizes are spread over powers of two.
	MaxSize int
	// LargeEvery sends one in LargeEvery allocations past the large-object
	// threshold, up to LargeMax bytes. 0 disables.
	LargeEvery int
	LargeMax   int
	// ReallocEvery turns one in ReallocEvery operations into a Realloc. 0 disables.
	ReallocEvery int
	// CheckEvery validates the allocator every CheckEvery operations. 0 disables.
	CheckEvery int
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Seed:         1,
		Ops:          10000,
		MaxSize:      64 << 10,
		LargeEvery:   20,
		LargeMax:     512 << 10,
		ReallocEvery: 10,
		CheckEvery:   100,
	}
}

// Report summarises a run.
type Report struct {
	Ops      int
	Mallocs  int
	Frees    int
	// Released counts the frees of the final teardown, outside of Ops.
	Released int
	Reallocs int
	// Failed counts requests the allocator refused.
	Failed int
	Large  int

	PeakLive  int
	PeakBytes int

	// Final is taken after every block was freed.
	Final malloc.Statistics
}

// Merge adds the counters of o to r. Peaks keep the larger value, the Final
// snapshots are summed as if the allocators were one.
func (r *Report) Merge(o *Report) {
	r.Ops += o.Ops
	r.Mallocs += o.Mallocs
	r.Frees += o.Frees
	r.Released += o.Released
	r.Reallocs += o.Reallocs
	r.Failed += o.Failed
	r.Large += o.Large
	r.PeakLive = max(r.PeakLive, o.PeakLive)
	r.PeakBytes = max(r.PeakBytes, o.PeakBytes)

	f := &r.Final
	f.ArenaBytes += o.Final.ArenaBytes
	f.HeaderSize = o.Final.HeaderSize
	f.FreeBlocks += o.Final.FreeBlocks
	f.FreeBytes += o.Final.FreeBytes
	f.AllocatedBlocks += o.Final.AllocatedBlocks
	f.AllocatedBytes += o.Final.AllocatedBytes
	f.MetadataBytes += o.Final.MetadataBytes
	f.LargeObjects += o.Final.LargeObjects
	f.LargeBytes += o.Final.LargeBytes
	for len(f.FreeBlocksByOrder) < len(o.Final.FreeBlocksByOrder) {
		f.FreeBlocksByOrder = append(f.FreeBlocksByOrder, 0)
	}
	for i, n := range o.Final.FreeBlocksByOrder {
		f.FreeBlocksByOrder[i] += n
	}
}

type block struct {
	b   []byte
	sum uint64
}

type runner struct {
	a      *malloc.Allocator
	cfg    *Config
	rng    *rand.Rand
	logger *slog.Logger
	// requests of at least large bytes bypass the arena
	large int

	live      []block
	liveBytes int
	report    Report
}

// Run executes cfg against a, then frees everything it allocated and checks
// that a is back where it started.
func Run(a *malloc.Allocator, cfg *Config, logger *slog.Logger) (*Report, error) {
	if cfg.Ops < 0 || cfg.MaxSize <= 0 {
		return nil, errors.Newf("workload: invalid config ops=%d max-size=%d", cfg.Ops, cfg.MaxSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	layout := a.Config()
	r := &runner{
		a:      a,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
		large:  layout.MaxBlockSize() - a.HeaderSize(),
	}
	start := a.Stats()

	for i := 0; i < cfg.Ops; i++ {
		if err := r.step(); err != nil {
			r.release()
			return nil, errors.Wrapf(err, "op %d", i)
		}
		r.report.Ops++
		if cfg.CheckEvery > 0 && (i+1)%cfg.CheckEvery == 0 {
			if err := r.check(); err != nil {
				r.release()
				return nil, errors.Wrapf(err, "op %d", i)
			}
		}
	}

	if err := r.release(); err != nil {
		return nil, err
	}
	r.report.Final = a.Stats()
	if r.report.Final.AllocatedBlocks != start.AllocatedBlocks || r.report.Final.FreeBytes != start.FreeBytes {
		return nil, errors.Wrapf(ErrLeak, "allocated blocks %d -> %d, free bytes %d -> %d",
			start.AllocatedBlocks, r.report.Final.AllocatedBlocks, start.FreeBytes, r.report.Final.FreeBytes)
	}
	logger.Debug("workload: done",
		slog.Int("Ops", r.report.Ops),
		slog.Int("Failed", r.report.Failed),
		slog.Int("PeakLive", r.report.PeakLive))
	return &r.report, nil
}

func (r *runner) step() error {
	switch {
	case len(r.live) > 0 && r.cfg.ReallocEvery > 0 && r.rng.Intn(r.cfg.ReallocEvery) == 0:
		return r.realloc()
	case len(r.live) == 0 || r.rng.Intn(2) == 0:
		r.malloc()
		return nil
	default:
		return r.free(r.rng.Intn(len(r.live)))
	}
}

func (r *runner) size() int {
	if r.cfg.LargeEvery > 0 && r.rng.Intn(r.cfg.LargeEvery) == 0 {
		if r.cfg.LargeMax > r.large {
			return r.large + r.rng.Intn(r.cfg.LargeMax-r.large+1)
		}
	}
	shift := r.rng.Intn(bits.Len(uint(r.cfg.MaxSize)))
	return 1 + r.rng.Intn(min(1<<shift, r.cfg.MaxSize))
}

func (r *runner) malloc() {
	size := r.size()
	b := r.a.Malloc(size)
	r.report.Mallocs++
	if b == nil {
		r.report.Failed++
		return
	}
	if size >= r.large {
		r.report.Large++
	}
	r.live = append(r.live, block{b: b, sum: r.fill(b)})
	r.liveBytes += len(b)
	r.report.PeakLive = max(r.report.PeakLive, len(r.live))
	r.report.PeakBytes = max(r.report.PeakBytes, r.liveBytes)
}

func (r *runner) realloc() error {
	idx := r.rng.Intn(len(r.live))
	blk := r.live[idx]
	if err := r.verify(blk); err != nil {
		return err
	}

	size := r.size()
	keep := min(len(blk.b), size)
	prefix := xxhash3.Hash(blk.b[:keep])

	nb := r.a.Realloc(blk.b, size)
	r.report.Reallocs++
	if nb == nil {
		// the old block must be untouched
		r.report.Failed++
		return r.verify(blk)
	}
	if xxhash3.Hash(nb[:keep]) != prefix {
		return errors.Wrapf(ErrContentMismatch, "realloc %d -> %d lost the prefix", len(blk.b), size)
	}
	r.liveBytes += len(nb) - len(blk.b)
	r.live[idx] = block{b: nb, sum: r.fill(nb)}
	r.report.PeakBytes = max(r.report.PeakBytes, r.liveBytes)
	return nil
}

func (r *runner) free(idx int) error {
	if err := r.drop(idx); err != nil {
		return err
	}
	r.report.Frees++
	return nil
}

// drop verifies and frees the live block at idx.
func (r *runner) drop(idx int) error {
	blk := r.live[idx]
	if err := r.verify(blk); err != nil {
		return err
	}
	r.a.Free(blk.b)
	r.liveBytes -= len(blk.b)
	r.live[idx] = r.live[len(r.live)-1]
	r.live = r.live[:len(r.live)-1]
	return nil
}

// release frees every live block, verifying each one.
func (r *runner) release() error {
	var errs error
	for len(r.live) > 0 {
		if err := r.drop(len(r.live) - 1); err != nil {
			errs = errors.CombineErrors(errs, err)
			// free it unverified
			r.a.Free(r.live[len(r.live)-1].b)
			r.live = r.live[:len(r.live)-1]
		}
		r.report.Released++
	}
	r.liveBytes = 0
	return errs
}

func (r *runner) check() error {
	s := r.a.Stats()
	if !s.Conserved() {
		return errors.Wrapf(ErrNotConserved, "free %d allocated %d metadata %d arena %d",
			s.FreeBytes, s.AllocatedBytes, s.MetadataBytes, s.ArenaBytes)
	}
	return r.a.Validate()
}

func (r *runner) fill(b []byte) uint64 {
	r.rng.Read(b)
	return xxhash3.Hash(b)
}

func (r *runner) verify(blk block) error {
	if xxhash3.Hash(blk.b) != blk.sum {
		return errors.Wrapf(ErrContentMismatch, "block of %d bytes", len(blk.b))
	}
	return nil
}
