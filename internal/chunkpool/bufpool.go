package chunkpool

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"

	"abd/internal/logging"
)

// Kind selects which buffer pool a contiguous buffer belongs to. Metadata
// and file data are pooled separately so their footprints are accounted
// (and reclaimed) independently.
type Kind int

const (
	KindData Kind = iota
	KindMetadata

	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// minBufClass is the smallest size class, 2^9 = 512 bytes.
const minBufClass = 9

// BufPool hands out variable-size contiguous buffers in power-of-two size
// classes, one freelist per class per kind. A buffer allocated at size n is
// backed by its class size but sliced to exactly n bytes; FreeBuf must be
// given the same size and kind the buffer was allocated with.
type BufPool struct {
	mu   sync.Mutex
	free [numKinds]map[int][][]byte // class size → freelist

	allocated [numKinds]atomic.Int64 // buffers currently out, per kind

	logger *slog.Logger
}

// NewBufPool creates the two-kind buffer pool.
func NewBufPool(logger *slog.Logger) *BufPool {
	bp := &BufPool{
		logger: logging.Default(logger).With("component", "buf-pool"),
	}
	for k := range bp.free {
		bp.free[k] = make(map[int][][]byte)
	}
	return bp
}

// classFor rounds size up to its power-of-two class, minimum 512 bytes.
func classFor(size int) int {
	if size <= 1<<minBufClass {
		return 1 << minBufClass
	}
	return 1 << bits.Len(uint(size-1))
}

// AllocBuf returns a buffer of exactly size bytes. Contents are undefined:
// recycled buffers keep their previous bytes.
func (bp *BufPool) AllocBuf(size int, kind Kind) []byte {
	if size <= 0 {
		panic(fmt.Sprintf("chunkpool: buffer size must be positive, got %d", size))
	}
	class := classFor(size)

	bp.mu.Lock()
	var b []byte
	if list := bp.free[kind][class]; len(list) > 0 {
		b = list[len(list)-1]
		list[len(list)-1] = nil
		bp.free[kind][class] = list[:len(list)-1]
	}
	bp.mu.Unlock()

	if b == nil {
		b = make([]byte, class)
	}
	bp.allocated[kind].Add(1)
	return b[:size]
}

// FreeBuf returns a buffer previously vended by AllocBuf. size and kind
// must match the allocation. Buffers that did not come from the pool
// (an ABD can take ownership of caller storage) may be smaller than
// their class; those are dropped instead of recycled.
func (bp *BufPool) FreeBuf(b []byte, size int, kind Kind) {
	if len(b) != size {
		panic(fmt.Sprintf("chunkpool: freed buffer has size %d, expected %d", len(b), size))
	}
	bp.allocated[kind].Add(-1)

	class := classFor(size)
	if cap(b) < class {
		return
	}
	bp.mu.Lock()
	bp.free[kind][class] = append(bp.free[kind][class], b[:class])
	bp.mu.Unlock()
}

// DrainCaches drops all cached free buffers.
func (bp *BufPool) DrainCaches() {
	bp.mu.Lock()
	n := 0
	for k := range bp.free {
		for _, list := range bp.free[k] {
			n += len(list)
		}
		bp.free[k] = make(map[int][][]byte)
	}
	bp.mu.Unlock()
	if n > 0 {
		bp.logger.Debug("drained buffer freelists", "buffers", n)
	}
}

// Allocated returns the number of buffers of the given kind currently out.
func (bp *BufPool) Allocated(kind Kind) int64 {
	return bp.allocated[kind].Load()
}
