package abd

// TryMove relocates an ABD's backing storage into freshly allocated
// storage of the same kind, so the old storage can be reclaimed and the
// slab defragmented. The logical identity — handle, size, flags, view
// relationships — is unchanged; only the backing chunks or buffer move.
//
// The move is refused (returning false) when the ABD is marked unmovable
// or has outstanding children. A view creation or borrow raises the
// children refcount under the same lock a move holds, so a move that
// observes zero children cannot race with one in progress.
func (a *ABD) TryMove() bool {
	m := mod()
	a.verify()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flags&flagNomove != 0 {
		m.stats.moveToBufFlagFail.Add(1)
		return false
	}
	if a.children != 0 {
		m.stats.moveRefcountNonzero.Add(1)
		return false
	}

	metadata := a.flags&flagMeta != 0
	if a.isLinearLocked() {
		a.moveLinearLocked(m, metadata)
		m.stats.movedLinear.Add(1)
		return true
	}

	a.moveScatterLocked(m)
	if metadata {
		m.stats.movedScatteredMetadata.Add(1)
	} else {
		m.stats.movedScatteredFiledata.Add(1)
	}
	return true
}

// moveScatterLocked copies every chunk into a fresh chunk and swaps the
// chunk table entries in place. Old chunks go back to the slab, not the
// freelist, so the space is actually reclaimable.
func (a *ABD) moveScatterLocked(m *module) {
	a.verifyLocked()

	n := a.scatterChunkcnt()
	fresh := make([][]byte, n)
	for i := range n {
		fresh[i] = m.pool.AllocChunk()
		copy(fresh[i], a.chunks[i])
	}

	for i := range n {
		m.pool.FreeChunkToSlab(a.chunks[i])
		a.chunks[i] = fresh[i]
	}

	a.createTime = m.now()
	a.verifyLocked()
}

// moveLinearLocked copies the payload into a fresh buffer from the same
// pool kind and swaps the pointer.
func (a *ABD) moveLinearLocked(m *module, metadata bool) {
	a.verifyLocked()

	kind := bufKind(metadata)
	fresh := m.bufs.AllocBuf(a.size, kind)
	copy(fresh, a.buf)

	old := a.buf
	a.buf = fresh
	m.bufs.FreeBuf(old, a.size, kind)

	a.createTime = m.now()
}
