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
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var infoDetailed bool

func init() {
	cmd := newInfoCmd()
	cmd.Flags().BoolVar(&infoDetailed, "detailed", false, "List every arena block (with --json)")
	rootCmd.AddCommand(cmd)
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the allocator layout",
		Long: `The info command creates an allocator with the given layout and
prints its block sizes, capacities and initial statistics.

Example:
  mallocctl info
  mallocctl info --max-order 4 --arena-blocks 2 --json --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo()
		},
	}
	return cmd
}

func runInfo() error {
	a, err := newAllocator(newLogger(os.Stderr))
	if err != nil {
		return errors.Wrap(err, "failed to create allocator")
	}
	defer a.Close()

	if jsonOut {
		printJSON([]byte(a.BuildStatsString(infoDetailed)))
		return nil
	}

	cfg := a.Config()
	s := a.Stats()
	printInfo("base unit:       %d\n", cfg.BaseUnit)
	printInfo("max order:       %d\n", cfg.MaxOrder)
	printInfo("arena blocks:    %d\n", cfg.ArenaBlocks)
	printInfo("arena size:      %d\n", s.ArenaBytes)
	printInfo("header size:     %d\n", s.HeaderSize)
	printInfo("large threshold: %d\n", cfg.MaxBlockSize()-s.HeaderSize)
	printInfo("max request:     %d\n", cfg.MaxRequest)
	printInfo("\n%-6s %10s %10s %6s\n", "ORDER", "BLOCK", "CAPACITY", "FREE")
	for order := 0; order <= cfg.MaxOrder; order++ {
		size := cfg.BaseUnit << order
		printInfo("%-6d %10d %10d %6d\n", order, size, size-s.HeaderSize, s.FreeBlocksByOrder[order])
	}
	return nil
}
