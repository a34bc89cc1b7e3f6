// Package chunkpool provides the allocators backing buffer payloads: a
// fixed-size chunk pool for scattered buffers and size-classed pools for
// contiguous buffers.
//
// Pool recycles chunks through a freelist so steady-state allocation does
// not touch the heap. FreeChunkToSlab bypasses the freelist and hands the
// chunk straight back to the runtime; compaction uses it so that relocated
// storage can actually be reclaimed instead of cycling through the cache.
package chunkpool

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"

	"abd/internal/logging"
)

// Pool hands out fixed-size chunks. All chunks are exactly ChunkSize bytes.
// Freed chunks are cached on a freelist and reused by later allocations.
//
// AllocChunk never returns nil; when the freelist is empty it allocates a
// fresh chunk. Exhaustion of the underlying heap is fatal upstream.
type Pool struct {
	mu        sync.Mutex
	chunkSize int
	free      [][]byte

	allocated    atomic.Int64 // chunks handed out and not yet freed
	totalAllocs  atomic.Int64
	freelistHits atomic.Int64
	slabFrees    atomic.Int64 // frees routed past the freelist

	logger *slog.Logger
}

// NewPool creates a chunk pool. chunkSize must be a power of two.
func NewPool(chunkSize int, logger *slog.Logger) (*Pool, error) {
	if chunkSize <= 0 || bits.OnesCount(uint(chunkSize)) != 1 {
		return nil, fmt.Errorf("chunk size must be a power of two, got %d", chunkSize)
	}
	return &Pool{
		chunkSize: chunkSize,
		logger:    logging.Default(logger).With("component", "chunk-pool"),
	}, nil
}

// ChunkSize returns the fixed size of chunks vended by this pool.
func (p *Pool) ChunkSize() int {
	return p.chunkSize
}

// AllocChunk returns a chunk of exactly ChunkSize bytes. Contents are
// undefined: recycled chunks keep their previous bytes.
func (p *Pool) AllocChunk() []byte {
	p.mu.Lock()
	var c []byte
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.freelistHits.Add(1)
	}
	p.mu.Unlock()

	if c == nil {
		c = make([]byte, p.chunkSize)
	}
	p.allocated.Add(1)
	p.totalAllocs.Add(1)
	return c
}

// FreeChunk returns a chunk to the freelist for reuse.
func (p *Pool) FreeChunk(c []byte) {
	p.checkChunk(c)
	p.allocated.Add(-1)
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
}

// FreeChunkToSlab releases a chunk without caching it, so the memory is
// eligible for reclamation immediately. Compaction frees the chunks it
// replaces through here; recycling them would defeat the point of moving.
func (p *Pool) FreeChunkToSlab(c []byte) {
	p.checkChunk(c)
	p.allocated.Add(-1)
	p.slabFrees.Add(1)
}

// DrainCaches drops every cached free chunk. Called before a compaction
// sweep so the sweep's reclamation is not masked by the freelist.
func (p *Pool) DrainCaches() {
	p.mu.Lock()
	n := len(p.free)
	p.free = nil
	p.mu.Unlock()
	if n > 0 {
		p.logger.Debug("drained chunk freelist", "chunks", n)
	}
}

func (p *Pool) checkChunk(c []byte) {
	if len(c) != p.chunkSize {
		panic(fmt.Sprintf("chunkpool: freed chunk has size %d, pool chunk size is %d", len(c), p.chunkSize))
	}
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	ChunkSize    int
	Allocated    int64 // chunks currently out
	TotalAllocs  int64
	FreelistLen  int
	FreelistHits int64
	SlabFrees    int64
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	freelistLen := len(p.free)
	p.mu.Unlock()
	return PoolStats{
		ChunkSize:    p.chunkSize,
		Allocated:    p.allocated.Load(),
		TotalAllocs:  p.totalAllocs.Load(),
		FreelistLen:  freelistLen,
		FreelistHits: p.freelistHits.Load(),
		SlabFrees:    p.slabFrees.Load(),
	}
}
