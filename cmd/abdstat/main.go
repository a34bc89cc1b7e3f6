// Command abdstat exercises the abd library and reports its statistics.
//
// Logging:
//   - Base logger is created here with output level
//   - Logger is passed to the library via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "abdstat",
		Short:   "Exercise the abd buffer library and report statistics",
		Version: version,
	}
	root.PersistentFlags().Int("chunk-size", 0, "chunk size in bytes (power of two, default 1024)")
	root.PersistentFlags().Bool("verbose", false, "log to stderr")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table or prometheus")

	root.AddCommand(newStatsCmd(), newBenchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loggerFromCmd builds the base logger from the persistent flags.
func loggerFromCmd(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
