package abd

import (
	"fmt"

	"abd/internal/chunkpool"
)

func checkSize(m *module, size int) {
	if size <= 0 {
		panic(fmt.Sprintf("abd: allocation size must be positive, got %d", size))
	}
	if size > m.maxBlockSize {
		panic(fmt.Sprintf("abd: allocation size %d exceeds max block size %d", size, m.maxBlockSize))
	}
}

func bufKind(meta bool) chunkpool.Kind {
	if meta {
		return chunkpool.KindMetadata
	}
	return chunkpool.KindData
}

// Alloc allocates an ABD along with its own backing storage. Use this when
// the representation does not matter: storage is scattered unless scatter
// is disabled by configuration.
func Alloc(size int, metadata bool) *ABD {
	m := mod()
	if !m.scatter {
		return AllocLinear(size, metadata)
	}
	checkSize(m, size)

	n := chunkcntForBytes(m, size)
	a := allocStruct(m, n)

	a.flags = flagOwner
	if metadata {
		a.flags |= flagMeta
	}
	a.size = size
	a.innerOffset = 0
	a.chunkSize = m.chunkSize

	for i := range n {
		a.chunks[i] = m.pool.AllocChunk()
	}

	m.stats.scatterCnt.Add(1)
	m.stats.scatterDataSize.Add(int64(size))
	m.stats.scatterChunkWaste.Add(int64(n*m.chunkSize - size))
	if metadata {
		m.stats.isMetadataScattered.Add(int64(size))
		m.stats.scatteredMetadataCnt.Add(1)
	} else {
		m.stats.isFileDataScattered.Add(int64(size))
		m.stats.scatteredFiledataCnt.Add(1)
	}
	if size < m.chunkSize {
		m.stats.smallScatterCnt.Add(1)
		a.flags |= flagSmall
	}

	return a
}

// AllocLinear allocates an ABD backed by one contiguous buffer. Only use
// this when a consumer genuinely needs contiguity; scattered storage
// fragments less.
func AllocLinear(size int, metadata bool) *ABD {
	m := mod()
	checkSize(m, size)

	a := allocStruct(m, 0)

	a.flags = flagLinear | flagOwner
	if metadata {
		a.flags |= flagMeta
	}
	a.size = size
	a.buf = m.bufs.AllocBuf(size, bufKind(metadata))

	m.stats.linearCnt.Add(1)
	m.stats.linearDataSize.Add(int64(size))
	if metadata {
		m.stats.isMetadataLinear.Add(int64(size))
	} else {
		m.stats.isFileDataLinear.Add(int64(size))
	}

	return a
}

// AllocSametype allocates an ABD with the same representation and metadata
// accounting as the template.
func AllocSametype(tmpl *ABD, size int) *ABD {
	metadata, linear := func() (bool, bool) {
		tmpl.mu.Lock()
		defer tmpl.mu.Unlock()
		tmpl.verifyLocked()
		return tmpl.flags&flagMeta != 0, tmpl.isLinearLocked()
	}()

	if linear {
		return AllocLinear(size, metadata)
	}
	return Alloc(size, metadata)
}

// AllocForIO allocates an ABD destined for short-lived block I/O. The
// block layer consumes whole payloads, so this is plain Alloc today; it
// stays a separate entry point in case a scatter/gather I/O path ever
// wants a different representation.
func AllocForIO(size int, metadata bool) *ABD {
	return Alloc(size, metadata)
}

// Free releases an ABD and its backing storage. Only owners may be freed;
// views are released with Put. The ABD must have no parent, and callers
// must guarantee no child views or borrows are outstanding.
func (a *ABD) Free() {
	m := mod()

	linear := func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.verifyLocked()
		// No new move can start once the flag is up.
		a.flags |= flagNomove
		if a.parent != nil {
			panic("abd: Free on a view; use Put")
		}
		if a.flags&flagOwner == 0 {
			panic("abd: Free on a non-owner; use Put")
		}
		return a.isLinearLocked()
	}()

	if linear {
		a.freeLinear(m)
	} else {
		a.freeScatter(m)
	}
	freeStruct(m, a)
}

func (a *ABD) freeScatter(m *module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.scatterChunkcnt()
	for i := range n {
		m.pool.FreeChunk(a.chunks[i])
		a.chunks[i] = nil
	}
	size := int64(a.size)
	metadata := a.flags&flagMeta != 0
	small := a.flags&flagSmall != 0
	waste := int64(n*a.chunkSize) - size

	m.stats.scatterCnt.Add(-1)
	m.stats.scatterDataSize.Add(-size)
	m.stats.scatterChunkWaste.Add(-waste)
	if small {
		m.stats.smallScatterCnt.Add(-1)
	}
	if metadata {
		m.stats.isMetadataScattered.Add(-size)
		m.stats.scatteredMetadataCnt.Add(-1)
	} else {
		m.stats.isFileDataScattered.Add(-size)
		m.stats.scatteredFiledataCnt.Add(-1)
	}
}

func (a *ABD) freeLinear(m *module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := int64(a.size)
	metadata := a.flags&flagMeta != 0
	m.bufs.FreeBuf(a.buf, a.size, bufKind(metadata))
	a.buf = nil

	m.stats.linearCnt.Add(-1)
	m.stats.linearDataSize.Add(-size)
	if metadata {
		m.stats.isMetadataLinear.Add(-size)
	} else {
		m.stats.isFileDataLinear.Add(-size)
	}
}

// TakeOwnershipOfBuf makes a linear non-owner ABD own its buffer, as if it
// had been allocated with AllocLinear. Only valid on ABDs created with
// GetFromBuf, or ones that released ownership earlier.
func (a *ABD) TakeOwnershipOfBuf(metadata bool) {
	m := mod()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isLinearLocked() {
		panic("abd: TakeOwnershipOfBuf on a scattered ABD")
	}
	if a.flags&flagOwner != 0 {
		panic("abd: TakeOwnershipOfBuf on an owner")
	}
	a.verifyLocked()

	a.flags |= flagOwner
	if metadata {
		a.flags |= flagMeta
		m.stats.isMetadataLinear.Add(int64(a.size))
	} else {
		m.stats.isFileDataLinear.Add(int64(a.size))
	}
	m.stats.linearCnt.Add(1)
	m.stats.linearDataSize.Add(int64(a.size))
}

// ReleaseOwnershipOfBuf disowns a linear ABD's buffer. The storage is not
// freed; the caller owns it afterwards and must release the ABD with Put.
func (a *ABD) ReleaseOwnershipOfBuf() {
	m := mod()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isLinearLocked() {
		panic("abd: ReleaseOwnershipOfBuf on a scattered ABD")
	}
	if a.flags&flagOwner == 0 {
		panic("abd: ReleaseOwnershipOfBuf on a non-owner")
	}
	a.verifyLocked()

	metadata := a.flags&flagMeta != 0
	a.flags &^= flagOwner
	// The metadata distinction only applies to owned storage.
	a.flags &^= flagMeta

	m.stats.linearCnt.Add(-1)
	m.stats.linearDataSize.Add(-int64(a.size))
	if metadata {
		m.stats.isMetadataLinear.Add(-int64(a.size))
	} else {
		m.stats.isFileDataLinear.Add(-int64(a.size))
	}
}
