package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"abd"
	"abd/compactor"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a parallel allocation/copy/compaction workload",
		RunE:  runBench,
	}
	cmd.Flags().Int("workers", 4, "concurrent workers")
	cmd.Flags().Int("size", 128<<10, "payload size per ABD in bytes")
	cmd.Flags().Int("count", 1000, "iterations per worker")
	cmd.Flags().Bool("linear", false, "use linear ABDs instead of scattered")
	cmd.Flags().Bool("sweep", false, "run a compaction sweep at the end")
	return cmd
}

func runBench(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	size, _ := cmd.Flags().GetInt("size")
	count, _ := cmd.Flags().GetInt("count")
	linear, _ := cmd.Flags().GetBool("linear")
	sweep, _ := cmd.Flags().GetBool("sweep")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")

	logger := loggerFromCmd(cmd)
	if err := abd.Init(abd.Config{ChunkSize: chunkSize, Logger: logger}); err != nil {
		return err
	}
	defer abd.Fini()

	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i * 31)
	}

	start := time.Now()
	g, _ := errgroup.WithContext(cmd.Context())
	for range workers {
		g.Go(func() error {
			scratch := make([]byte, size)
			for range count {
				var a *abd.ABD
				if linear {
					a = abd.AllocLinear(size, false)
				} else {
					a = abd.Alloc(size, false)
				}
				a.CopyFromBuf(pattern)

				b := abd.AllocSametype(a, size)
				abd.Copy(b, a, size)
				if abd.Cmp(a, b, size) != 0 {
					return fmt.Errorf("copied payload differs from source")
				}

				a.TryMove()
				a.CopyToBuf(scratch)

				b.Free()
				a.Free()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	ops := workers * count
	bytesMoved := int64(ops) * int64(size)
	fmt.Fprintf(cmd.OutOrStdout(), "%d iterations, %d workers, %s\n", ops, workers, elapsed.Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "%.1f MiB/s payload throughput\n",
		float64(bytesMoved)/(1<<20)/elapsed.Seconds())

	if sweep {
		if err := runSweep(cmd, size, linear); err != nil {
			return err
		}
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "prometheus" {
		abd.WriteMetrics(cmd.OutOrStdout())
		return nil
	}
	return printStatsTable()
}

// runSweep keeps a handful of ABDs alive and drives one compaction sweep
// over them, reporting the result.
func runSweep(cmd *cobra.Command, size int, linear bool) error {
	s, err := compactor.New(compactor.Config{
		MinAge: time.Nanosecond,
		Logger: loggerFromCmd(cmd),
	})
	if err != nil {
		return err
	}

	var held []*abd.ABD
	var ids []uuid.UUID
	for range 16 {
		var a *abd.ABD
		if linear {
			a = abd.AllocLinear(size, false)
		} else {
			a = abd.Alloc(size, false)
		}
		a.Zero()
		ids = append(ids, s.Register(a))
		held = append(held, a)
	}

	res := s.SweepNow(context.Background())
	fmt.Fprintf(cmd.OutOrStdout(), "sweep: %d eligible, %d moved, %d refused\n",
		res.Eligible, res.Moved, res.Refused)

	for i, a := range held {
		s.Unregister(ids[i])
		a.Free()
	}
	return nil
}
