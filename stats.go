package abd

import (
	"fmt"
	"io"
	"sync/atomic"
)

// stats is the registry of module counters. All updates are atomic adds;
// no ordering is promised between counter bumps and handle state, so
// observers must treat reads as eventually consistent.
type stats struct {
	structSize atomic.Int64

	// scatterCnt counts scattered ABDs that own their data; views and
	// other non-owners are excluded. linearCnt is the same for linear
	// ABDs, and grows when an ABD takes ownership of its buffer.
	scatterCnt        atomic.Int64
	scatterDataSize   atomic.Int64
	scatterChunkWaste atomic.Int64
	linearCnt         atomic.Int64
	linearDataSize    atomic.Int64

	isFileDataScattered atomic.Int64
	isMetadataScattered atomic.Int64
	isFileDataLinear    atomic.Int64
	isMetadataLinear    atomic.Int64

	smallScatterCnt      atomic.Int64
	scatteredMetadataCnt atomic.Int64
	scatteredFiledataCnt atomic.Int64

	borrowedBufCnt atomic.Int64

	// TryMove outcomes.
	moveRefcountNonzero    atomic.Int64
	movedLinear            atomic.Int64
	movedScatteredFiledata atomic.Int64
	movedScatteredMetadata atomic.Int64
	moveToBufFlagFail      atomic.Int64
}

// Stats is a point-in-time snapshot of the module counters.
type Stats struct {
	StructSize int64

	ScatterCnt        int64
	ScatterDataSize   int64
	ScatterChunkWaste int64
	LinearCnt         int64
	LinearDataSize    int64

	IsFileDataScattered int64
	IsMetadataScattered int64
	IsFileDataLinear    int64
	IsMetadataLinear    int64

	SmallScatterCnt      int64
	ScatteredMetadataCnt int64
	ScatteredFiledataCnt int64

	BorrowedBufCnt int64

	MoveRefcountNonzero    int64
	MovedLinear            int64
	MovedScatteredFiledata int64
	MovedScatteredMetadata int64
	MoveToBufFlagFail      int64
}

// ReadStats returns a snapshot of the module counters.
func ReadStats() Stats {
	s := &mod().stats
	return Stats{
		StructSize:             s.structSize.Load(),
		ScatterCnt:             s.scatterCnt.Load(),
		ScatterDataSize:        s.scatterDataSize.Load(),
		ScatterChunkWaste:      s.scatterChunkWaste.Load(),
		LinearCnt:              s.linearCnt.Load(),
		LinearDataSize:         s.linearDataSize.Load(),
		IsFileDataScattered:    s.isFileDataScattered.Load(),
		IsMetadataScattered:    s.isMetadataScattered.Load(),
		IsFileDataLinear:       s.isFileDataLinear.Load(),
		IsMetadataLinear:       s.isMetadataLinear.Load(),
		SmallScatterCnt:        s.smallScatterCnt.Load(),
		ScatteredMetadataCnt:   s.scatteredMetadataCnt.Load(),
		ScatteredFiledataCnt:   s.scatteredFiledataCnt.Load(),
		BorrowedBufCnt:         s.borrowedBufCnt.Load(),
		MoveRefcountNonzero:    s.moveRefcountNonzero.Load(),
		MovedLinear:            s.movedLinear.Load(),
		MovedScatteredFiledata: s.movedScatteredFiledata.Load(),
		MovedScatteredMetadata: s.movedScatteredMetadata.Load(),
		MoveToBufFlagFail:      s.moveToBufFlagFail.Load(),
	}
}

// WriteMetrics emits the counters in Prometheus text exposition format.
// The caller supplies the writer; no HTTP endpoint is provided here.
func WriteMetrics(w io.Writer) {
	st := ReadStats()
	pst := mod().pool.Stats()

	gauge := func(name, help string, v int64) {
		_, _ = fmt.Fprintf(w, "# HELP abd_%s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE abd_%s gauge\n", name)
		_, _ = fmt.Fprintf(w, "abd_%s %d\n", name, v)
	}
	counter := func(name, help string, v int64) {
		_, _ = fmt.Fprintf(w, "# HELP abd_%s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE abd_%s counter\n", name)
		_, _ = fmt.Fprintf(w, "abd_%s %d\n", name, v)
	}

	gauge("struct_size_bytes", "Memory occupied by handle structures.", st.StructSize)
	gauge("scatter_count", "Scattered ABDs that own their data.", st.ScatterCnt)
	gauge("scatter_data_bytes", "Data stored in owned scattered ABDs.", st.ScatterDataSize)
	gauge("scatter_chunk_waste_bytes", "Space wasted at the end of last chunks.", st.ScatterChunkWaste)
	gauge("linear_count", "Linear ABDs that own their data.", st.LinearCnt)
	gauge("linear_data_bytes", "Data stored in owned linear ABDs.", st.LinearDataSize)
	gauge("file_data_scattered_bytes", "File data held scattered.", st.IsFileDataScattered)
	gauge("metadata_scattered_bytes", "Metadata held scattered.", st.IsMetadataScattered)
	gauge("file_data_linear_bytes", "File data held linear.", st.IsFileDataLinear)
	gauge("metadata_linear_bytes", "Metadata held linear.", st.IsMetadataLinear)
	gauge("small_scatter_count", "Scattered allocations below one chunk.", st.SmallScatterCnt)
	gauge("scattered_metadata_count", "Scattered metadata buffers.", st.ScatteredMetadataCnt)
	gauge("scattered_filedata_count", "Scattered file data buffers.", st.ScatteredFiledataCnt)
	gauge("borrowed_buf_count", "Raw buffers currently borrowed.", st.BorrowedBufCnt)

	counter("move_refcount_nonzero_total", "Moves refused because children were outstanding.", st.MoveRefcountNonzero)
	counter("moved_linear_total", "Linear ABDs relocated.", st.MovedLinear)
	counter("moved_scattered_filedata_total", "Scattered file data ABDs relocated.", st.MovedScatteredFiledata)
	counter("moved_scattered_metadata_total", "Scattered metadata ABDs relocated.", st.MovedScatteredMetadata)
	counter("move_to_buf_flag_fail_total", "Moves refused by the no-move flag.", st.MoveToBufFlagFail)

	gauge("chunk_pool_allocated", "Chunks currently out of the pool.", pst.Allocated)
	gauge("chunk_pool_freelist", "Chunks cached on the pool freelist.", int64(pst.FreelistLen))
	counter("chunk_pool_allocs_total", "Chunk allocations served.", pst.TotalAllocs)
	counter("chunk_pool_freelist_hits_total", "Chunk allocations served from the freelist.", pst.FreelistHits)
	counter("chunk_pool_slab_frees_total", "Chunks released past the freelist.", pst.SlabFrees)
}
