package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"abd"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Run a brief self-exercise and print the counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			chunkSize, _ := cmd.Flags().GetInt("chunk-size")
			if err := abd.Init(abd.Config{
				ChunkSize: chunkSize,
				Logger:    loggerFromCmd(cmd),
			}); err != nil {
				return err
			}
			defer abd.Fini()

			selfExercise()

			output, _ := cmd.Flags().GetString("output")
			if output == "prometheus" {
				abd.WriteMetrics(cmd.OutOrStdout())
				return nil
			}
			return printStatsTable()
		},
	}
}

// selfExercise touches every major path once so the counters are
// non-trivial: scattered and linear allocation, a view, a borrow, a move.
func selfExercise() {
	sc := abd.Alloc(48<<10, false)
	sc.Zero()
	v := sc.GetOffset(1000)
	v.Put()
	sc.TryMove()
	sc.Free()

	lin := abd.AllocLinear(16<<10, true)
	b := lin.BorrowBuf(4096)
	lin.ReturnBuf(b)
	lin.TryMove()
	lin.Free()
}

func printStatsTable() error {
	st := abd.ReadStats()
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	rows := []struct {
		name  string
		value int64
	}{
		{"struct_size", st.StructSize},
		{"scatter_cnt", st.ScatterCnt},
		{"scatter_data_size", st.ScatterDataSize},
		{"scatter_chunk_waste", st.ScatterChunkWaste},
		{"linear_cnt", st.LinearCnt},
		{"linear_data_size", st.LinearDataSize},
		{"is_file_data_scattered", st.IsFileDataScattered},
		{"is_metadata_scattered", st.IsMetadataScattered},
		{"is_file_data_linear", st.IsFileDataLinear},
		{"is_metadata_linear", st.IsMetadataLinear},
		{"small_scatter_cnt", st.SmallScatterCnt},
		{"scattered_metadata_buffers", st.ScatteredMetadataCnt},
		{"scattered_filedata_buffers", st.ScatteredFiledataCnt},
		{"borrowed_bufs", st.BorrowedBufCnt},
		{"move_refcount_nonzero", st.MoveRefcountNonzero},
		{"moved_linear", st.MovedLinear},
		{"moved_scattered_filedata", st.MovedScatteredFiledata},
		{"moved_scattered_metadata", st.MovedScatteredMetadata},
		{"move_to_buf_flag_fail", st.MoveToBufFlagFail},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\n", r.name, r.value)
	}
	return w.Flush()
}
