package abd

import "fmt"

// getOffsetImpl builds the view handle. Holds the parent lock while
// copying the chunk table and raising the child refcount, so a concurrent
// TryMove cannot swap storage out from under the copy.
func getOffsetImpl(m *module, sabd *ABD, off, size int) *ABD {
	sabd.mu.Lock()
	defer sabd.mu.Unlock()
	sabd.verifyLocked()
	sabd.flags |= flagNomove
	if off > sabd.size {
		panic(fmt.Sprintf("abd: view offset %d beyond parent size %d", off, sabd.size))
	}

	var a *ABD
	if sabd.isLinearLocked() {
		a = allocStruct(m, 0)
		// The parent may hold metadata, but that is tracked only on the
		// owner of the storage, which this view is not.
		a.flags = flagLinear
		a.buf = sabd.buf[off : off+size]
	} else {
		newOffset := sabd.innerOffset + off
		skip := newOffset / sabd.chunkSize
		chunkcnt := sabd.scatterChunkcnt() - skip

		a = allocStruct(m, chunkcnt)
		a.innerOffset = newOffset % sabd.chunkSize
		a.chunkSize = sabd.chunkSize
		// Share the chunk slices, not the chunk contents.
		copy(a.chunks, sabd.chunks[skip:])
	}

	a.size = size
	a.parent = sabd
	a.flags |= flagNomove
	sabd.children += int64(size)

	return a
}

// GetOffset returns a view onto sabd from byte off to the end. The view
// aliases the parent's storage and pins the parent until Put.
func (sabd *ABD) GetOffset(off int) *ABD {
	sabd.verify()

	size := 0
	if s := sabd.Size(); s > off {
		size = s - off
	}
	if size <= 0 {
		panic(fmt.Sprintf("abd: view offset %d leaves no payload", off))
	}
	return getOffsetImpl(mod(), sabd, off, size)
}

// GetOffsetSize is GetOffset with an explicit view length.
func (sabd *ABD) GetOffsetSize(off, size int) *ABD {
	sabd.verify()

	if size <= 0 {
		panic(fmt.Sprintf("abd: view size must be positive, got %d", size))
	}
	if off+size > sabd.Size() {
		panic(fmt.Sprintf("abd: view [%d, %d) beyond parent size %d", off, off+size, sabd.Size()))
	}
	return getOffsetImpl(mod(), sabd, off, size)
}

// GetFromBuf wraps a caller-owned buffer in a linear non-owner ABD.
// Release with Put; the buffer itself is never freed here.
func GetFromBuf(buf []byte) *ABD {
	m := mod()
	size := len(buf)
	checkSize(m, size)

	a := allocStruct(m, 0)
	// Not an owner: the metadata distinction is never tracked here, and
	// the storage cannot be relocated because the caller holds it too.
	a.flags = flagLinear | flagNomove
	a.size = size
	a.buf = buf
	return a
}

// Put releases a non-owner ABD: a view from GetOffset or a wrapper from
// GetFromBuf. The backing storage is untouched. When the parent's last
// dependent goes away, the parent becomes movable again.
func (a *ABD) Put() {
	m := mod()

	func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.verifyLocked()
		if a.flags&flagOwner != 0 {
			panic("abd: Put on an owner; use Free")
		}

		// Child-then-parent is the only multi-ABD lock order in the
		// API, so this nested hold cannot deadlock.
		if p := a.parent; p != nil {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.children -= int64(a.size)
			if p.children < 0 {
				panic("abd: parent children refcount went negative")
			}
			if p.children == 0 {
				p.flags &^= flagNomove
			}
		}
	}()

	freeStruct(m, a)
}

// ToBuf returns the raw buffer of a linear ABD. The loan is untracked, so
// the ABD is marked unmovable permanently.
func (a *ABD) ToBuf() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isLinearLocked() {
		panic("abd: ToBuf on a scattered ABD")
	}
	a.verifyLocked()
	a.flags |= flagNomove
	return a.buf
}

// ToBufEphemeral is ToBuf without marking the ABD unmovable. Only for
// immediate, non-retained access; the slice must not outlive the call
// site, since a move would strand it on the old storage.
func (a *ABD) ToBufEphemeral() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isLinearLocked() {
		panic("abd: ToBufEphemeral on a scattered ABD")
	}
	a.verifyLocked()
	return a.buf
}
