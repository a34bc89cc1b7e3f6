// Package abd implements abstract buffer data (ABD): a uniform handle for
// block-sized byte payloads used by the cache and I/O paths of a
// copy-on-write storage engine.
//
// An ABD stores its payload one of two ways:
//
//   - Linear: one contiguous buffer holding all the data.
//   - Scattered: the data split across equal-sized chunks drawn from a
//     chunk pool, with the chunk slices recorded in a table on the handle.
//
// Keeping long-lived payloads scattered reduces fragmentation: at the
// allocation limit, equal-size chunks can be reclaimed quickly to make
// room for a new large allocation.
//
// Besides allocating a linear or scattered ABD directly, a sub-ABD can be
// created at an offset within an existing ABD with GetOffset. For linear
// parents the child simply aliases the buffer at the offset; for scattered
// parents the child copies the relevant chunk slices (not the data) and
// records the residual offset into the first chunk. Either way the child
// holds a reference on the parent, and the parent's children refcount —
// weighted by child size — keeps the parent pinned and immovable until
// every child is put.
//
// Most consumers never need to know which representation is in use. If raw
// access to the bytes is required, ToBuf works on linear ABDs; otherwise
// BorrowBuf / ReturnBuf loan out a contiguous buffer, copying through it
// for scattered ABDs. Compare, copy, read, write and zero operations are
// provided; custom progressive access goes through IterateFunc.
//
// The package has process-wide state (chunk pool, buffer pools, counters)
// established by Init and torn down by Fini.
package abd

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type abdFlag uint32

const (
	// flagLinear marks a contiguous payload. Immutable after construction.
	flagLinear abdFlag = 1 << iota
	// flagOwner marks an ABD that owns (and will free) its backing storage.
	flagOwner
	// flagMeta marks owned storage accounted as filesystem metadata.
	flagMeta
	// flagSmall marks a scattered allocation below one chunk. Stats only.
	flagSmall
	// flagNomove forbids compaction while set.
	flagNomove
)

const handleMagic uint64 = 0xabdbadc0ffee57a7

// ABD is an abstract buffer data handle. All fields are guarded by mu
// except size, flagLinear and the payload identity, which are immutable
// after construction. The zero value is not usable; construct through
// Alloc, AllocLinear, GetOffset or GetFromBuf.
type ABD struct {
	mu    sync.Mutex
	magic uint64
	flags abdFlag
	size  int

	// parent is the ABD whose storage this one aliases; nil for roots.
	parent *ABD
	// children is the byte-weighted count of outstanding dependents:
	// each view adds its size, each borrow adds its length.
	children int64

	// createTime records the last storage placement, for diagnostics.
	createTime time.Time

	// Linear payload.
	buf []byte

	// Scattered payload. chunkSize is captured at allocation so a
	// chunk-size configuration change is caught when the ABD is mapped.
	innerOffset int
	chunkSize   int
	chunks      [][]byte
}

// handleSize approximates the memory footprint of a handle with the given
// chunk table length, for the struct-size counter.
func handleSize(chunkcnt int) int64 {
	return int64(unsafe.Sizeof(ABD{})) + int64(chunkcnt)*int64(unsafe.Sizeof([]byte(nil)))
}

// allocStruct creates a zeroed handle with a chunk table of chunkcnt
// entries and stamps the magic and creation time.
func allocStruct(m *module, chunkcnt int) *ABD {
	a := &ABD{
		magic:      handleMagic,
		createTime: m.now(),
	}
	if chunkcnt > 0 {
		a.chunks = make([][]byte, chunkcnt)
	}
	m.stats.structSize.Add(handleSize(chunkcnt))
	return a
}

// freeStruct poisons the handle so use after destruction trips the magic
// check, and reverses the struct-size accounting.
func freeStruct(m *module, a *ABD) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.magic != handleMagic {
		panic(fmt.Sprintf("abd: bad handle magic %#x (double destroy?)", a.magic))
	}
	m.stats.structSize.Add(-handleSize(len(a.chunks)))
	a.magic = 0
	a.flags = 0
	a.size = 0
	a.parent = nil
	a.createTime = time.Time{}
	a.buf = nil
	a.innerOffset = 0
	a.chunkSize = 0
	a.chunks = nil
}

// chunkcntForBytes returns the number of chunks needed for size bytes.
func chunkcntForBytes(m *module, size int) int {
	return (size + m.chunkSize - 1) / m.chunkSize
}

// scatterChunkcnt returns the number of chunk table entries this scattered
// ABD addresses, accounting for the offset into the first chunk.
func (a *ABD) scatterChunkcnt() int {
	if a.isLinearLocked() {
		panic("abd: scatterChunkcnt on a linear ABD")
	}
	return (a.innerOffset + a.size + a.chunkSize - 1) / a.chunkSize
}

func (a *ABD) isLinearLocked() bool {
	return a.flags&flagLinear != 0
}

// verifyLocked checks the handle invariants. Callers hold a.mu.
func (a *ABD) verifyLocked() {
	if a.magic != handleMagic {
		panic(fmt.Sprintf("abd: bad handle magic %#x (destroyed or corrupted handle?)", a.magic))
	}
	if a.size <= 0 {
		panic(fmt.Sprintf("abd: handle has size %d", a.size))
	}
	if a.flags&^(flagLinear|flagOwner|flagMeta|flagSmall|flagNomove) != 0 {
		panic(fmt.Sprintf("abd: unknown flags %#x", a.flags))
	}
	if a.parent != nil && a.flags&flagOwner != 0 {
		panic("abd: a view must not own its storage")
	}
	if a.flags&flagMeta != 0 && a.flags&flagOwner == 0 {
		panic("abd: metadata flag on unowned storage")
	}
	if a.isLinearLocked() {
		if a.buf == nil {
			panic("abd: linear ABD with nil buffer")
		}
	} else {
		if a.innerOffset < 0 || a.innerOffset >= a.chunkSize {
			panic(fmt.Sprintf("abd: inner offset %d outside chunk size %d", a.innerOffset, a.chunkSize))
		}
		n := a.scatterChunkcnt()
		if len(a.chunks) < n {
			panic(fmt.Sprintf("abd: chunk table has %d entries, need %d", len(a.chunks), n))
		}
		for i := range n {
			if a.chunks[i] == nil {
				panic(fmt.Sprintf("abd: nil chunk at index %d", i))
			}
		}
	}
}

func (a *ABD) verify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyLocked()
}

// IsLinear reports whether the payload is one contiguous buffer.
func (a *ABD) IsLinear() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyLocked()
	return a.isLinearLocked()
}

// Size returns the logical payload length in bytes.
func (a *ABD) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyLocked()
	return a.size
}

// CreateTime returns the time of the last storage placement — allocation
// or successful TryMove. Diagnostics only.
func (a *ABD) CreateTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyLocked()
	return a.createTime
}
