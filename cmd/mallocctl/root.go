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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/cloudwego/gomalloc/internal/osmem"
	"github.com/cloudwego/gomalloc/unsafex/malloc"
)

var (
	// Global flags
	verbose bool
	jsonOut bool

	// Layout flags
	baseUnit    int
	maxOrder    int
	arenaBlocks int
	heapArena   bool
)

var rootCmd = &cobra.Command{
	Use:   "mallocctl",
	Short: "Exercise and inspect the buddy allocator",
	Long: `mallocctl drives the buddy allocator with synthetic workloads and
reports its layout and block statistics.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")

	def := malloc.DefaultConfig()
	rootCmd.PersistentFlags().IntVar(&baseUnit, "base-unit", def.BaseUnit, "Size of an order-0 block in bytes")
	rootCmd.PersistentFlags().IntVar(&maxOrder, "max-order", def.MaxOrder, "Order of the largest arena block")
	rootCmd.PersistentFlags().IntVar(&arenaBlocks, "arena-blocks", def.ArenaBlocks, "Number of max-order blocks in the arena")
	rootCmd.PersistentFlags().BoolVar(&heapArena, "heap", false, "Back the arena with Go heap memory instead of an OS mapping")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newAllocator builds an allocator from the layout flags.
func newAllocator(logger *slog.Logger) (*malloc.Allocator, error) {
	cfg := malloc.DefaultConfig()
	cfg.BaseUnit = baseUnit
	cfg.MaxOrder = maxOrder
	cfg.ArenaBlocks = arenaBlocks

	opts := []malloc.Option{malloc.WithConfig(cfg), malloc.WithLogger(logger)}
	if heapArena {
		opts = append(opts, malloc.WithMapper(osmem.HeapMapper{}))
	}
	return malloc.New(opts...)
}

// printInfo prints to stdout
func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// printJSON prints a pre-rendered JSON document
func printJSON(b []byte) {
	os.Stdout.Write(b)
	os.Stdout.Write([]byte{'\n'})
}
