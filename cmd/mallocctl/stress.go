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
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/gomalloc/internal/workload"
)

var (
	stressCfg     = workload.DefaultConfig()
	stressWorkers int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().Int64Var(&stressCfg.Seed, "seed", stressCfg.Seed, "Random seed")
	cmd.Flags().IntVar(&stressCfg.Ops, "ops", stressCfg.Ops, "Number of operations")
	cmd.Flags().IntVar(&stressCfg.MaxSize, "max-size", stressCfg.MaxSize, "Largest arena request in bytes")
	cmd.Flags().IntVar(&stressCfg.LargeEvery, "large-every", stressCfg.LargeEvery, "One in N allocations is a large object (0 disables)")
	cmd.Flags().IntVar(&stressCfg.LargeMax, "large-max", stressCfg.LargeMax, "Largest large-object request in bytes")
	cmd.Flags().IntVar(&stressCfg.ReallocEvery, "realloc-every", stressCfg.ReallocEvery, "One in N operations is a realloc (0 disables)")
	cmd.Flags().IntVar(&stressCfg.CheckEvery, "check-every", stressCfg.CheckEvery, "Validate the allocator every N operations (0 disables)")
	cmd.Flags().IntVar(&stressWorkers, "workers", 1, "Number of allocators stressed in parallel, worker i uses seed+i")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a random allocate/free/realloc workload",
		Long: `The stress command runs a seeded random workload against a fresh
allocator, verifying block contents and byte conservation, and fails if the
allocator does not return to its initial state once everything is freed.

Example:
  mallocctl stress --ops 100000 --seed 42
  mallocctl stress --heap --arena-blocks 4 --json
  mallocctl stress --workers 8 --ops 50000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

func runStress() error {
	if stressWorkers < 1 {
		return errors.Newf("--workers must be at least 1, got %d", stressWorkers)
	}
	logger := newLogger(os.Stderr)

	// allocators are not safe for concurrent use, each worker owns one
	reports := make([]*workload.Report, stressWorkers)
	g := new(errgroup.Group)
	for i := range reports {
		i := i
		g.Go(func() error {
			a, err := newAllocator(logger)
			if err != nil {
				return errors.Wrap(err, "failed to create allocator")
			}
			defer a.Close()

			cfg := *stressCfg
			cfg.Seed += int64(i)
			r, err := workload.Run(a, &cfg, logger.With(slog.Int("Worker", i)))
			if err != nil {
				return errors.Wrapf(err, "worker %d: stress failed", i)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r := reports[0]
	for _, o := range reports[1:] {
		r.Merge(o)
	}

	if jsonOut {
		printJSON(reportJSON(r))
		return nil
	}

	printInfo("workers:      %d\n", stressWorkers)
	printInfo("ops:          %d\n", r.Ops)
	printInfo("mallocs:      %d\n", r.Mallocs)
	printInfo("frees:        %d\n", r.Frees)
	printInfo("reallocs:     %d\n", r.Reallocs)
	printInfo("released:     %d\n", r.Released)
	printInfo("failed:       %d\n", r.Failed)
	printInfo("large:        %d\n", r.Large)
	printInfo("peak live:    %d blocks, %d bytes\n", r.PeakLive, r.PeakBytes)
	printInfo("free blocks:  %d (%d bytes)\n", r.Final.FreeBlocks, r.Final.FreeBytes)
	printInfo("OK\n")
	return nil
}

func reportJSON(r *workload.Report) []byte {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("Workers").Int(stressWorkers)
	obj.Name("Ops").Int(r.Ops)
	obj.Name("Mallocs").Int(r.Mallocs)
	obj.Name("Frees").Int(r.Frees)
	obj.Name("Reallocs").Int(r.Reallocs)
	obj.Name("Released").Int(r.Released)
	obj.Name("Failed").Int(r.Failed)
	obj.Name("Large").Int(r.Large)
	obj.Name("PeakLive").Int(r.PeakLive)
	obj.Name("PeakBytes").Int(r.PeakBytes)
	final := obj.Name("Final").Object()
	final.Name("FreeBlocks").Int(r.Final.FreeBlocks)
	final.Name("FreeBytes").Int(r.Final.FreeBytes)
	final.Name("AllocatedBlocks").Int(r.Final.AllocatedBlocks)
	final.Name("AllocatedBytes").Int(r.Final.AllocatedBytes)
	final.End()
	obj.End()
	return w.Bytes()
}
