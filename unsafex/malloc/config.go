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
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/cloudwego/gomalloc/internal/osmem"
)

const (
	// DefaultBaseUnit is the size of an order-0 block, header included.
	DefaultBaseUnit = 128

	// DefaultMaxOrder is the order of the largest arena block (128B << 10 = 128KB).
	DefaultMaxOrder = 10

	// DefaultArenaBlocks is the number of max-order blocks reserved at init.
	DefaultArenaBlocks = 32

	// DefaultMaxRequest is the hard cap for a single request.
	DefaultMaxRequest = 100000000

	// maxOrderLimit keeps orders representable in the header.
	maxOrderLimit = 30

	maxBaseUnit = 1 << 20

	// maxRequestLimit keeps size+headerSize representable.
	maxRequestLimit = math.MaxInt - headerSize
)

// Config holds the layout of an Allocator.
type Config struct {
	// BaseUnit is the size of an order-0 block including its header.
	BaseUnit int
	// MaxOrder is the order of the largest arena block.
	MaxOrder int
	// ArenaBlocks is the number of MaxOrder blocks the arena is partitioned into.
	ArenaBlocks int
	// MaxRequest rejects any larger request before touching allocator state.
	MaxRequest int
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseUnit:    DefaultBaseUnit,
		MaxOrder:    DefaultMaxOrder,
		ArenaBlocks: DefaultArenaBlocks,
		MaxRequest:  DefaultMaxRequest,
	}
}

// MaxBlockSize is the size of a MaxOrder block, header included.
func (c *Config) MaxBlockSize() int {
	return c.BaseUnit << c.MaxOrder
}

// ArenaSize is the number of bytes reserved for the arena.
func (c *Config) ArenaSize() int {
	return c.ArenaBlocks * c.MaxBlockSize()
}

// Validate checks that c describes a usable buddy layout.
func (c *Config) Validate() error {
	if err := checkPow2(c.BaseUnit, "BaseUnit"); err != nil {
		return err
	}
	if c.BaseUnit <= headerSize || c.BaseUnit > maxBaseUnit {
		return errors.Newf("malloc: BaseUnit must be in (%d, %d], got %d", headerSize, maxBaseUnit, c.BaseUnit)
	}
	if c.MaxOrder < 0 || c.MaxOrder > maxOrderLimit {
		return errors.Newf("malloc: MaxOrder must be in [0, %d], got %d", maxOrderLimit, c.MaxOrder)
	}
	if c.ArenaBlocks <= 0 {
		return errors.Newf("malloc: ArenaBlocks must be positive, got %d", c.ArenaBlocks)
	}
	if c.ArenaBlocks > math.MaxInt/c.MaxBlockSize() {
		return errors.Newf("malloc: arena of %d blocks of %d bytes overflows", c.ArenaBlocks, c.MaxBlockSize())
	}
	if c.MaxRequest <= 0 || c.MaxRequest > maxRequestLimit {
		return errors.Newf("malloc: MaxRequest must be in (0, %d], got %d", maxRequestLimit, c.MaxRequest)
	}
	return nil
}

type options struct {
	config *Config
	logger *slog.Logger
	mapper osmem.Mapper
}

// Option configures New.
type Option func(*options)

// WithConfig overrides DefaultConfig. The Config is copied.
func WithConfig(c *Config) Option {
	return func(o *options) {
		cp := *c
		o.config = &cp
	}
}

// WithLogger sets the logger used for arena, large-object and failure events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMapper replaces the OS mapper used for the arena and large objects.
func WithMapper(m osmem.Mapper) Option {
	return func(o *options) {
		o.mapper = m
	}
}
