package abd

import "fmt"

// IterFunc is the callback for IterateFunc. It receives a window of
// payload bytes; a non-zero return stops the walk and is propagated.
type IterFunc func(buf []byte) int

// IterFunc2 is the callback for IterateFunc2. Both windows always have
// equal length.
type IterFunc2 func(dbuf, sbuf []byte) int

// iter is a cursor over one ABD's payload. It resolves a logical position
// to a window of mappable bytes: the rest of the buffer for linear ABDs,
// the rest of the current chunk for scattered ones.
type iter struct {
	abd    *ABD
	pos    int
	mapped []byte
}

func (it *iter) init(a *ABD) {
	a.verifyLocked()
	it.abd = a
	it.pos = 0
	it.mapped = nil
}

// advance moves the position forward. Must not be called while a window
// is mapped. Does nothing once the cursor is exhausted.
func (it *iter) advance(amount int) {
	if it.mapped != nil {
		panic("abd: iterator advanced while mapped")
	}
	if it.pos == it.abd.size {
		return
	}
	it.pos += amount
}

// mapChunk resolves the current position. Does nothing once the cursor is
// exhausted.
func (it *iter) mapChunk() {
	if it.mapped != nil {
		panic("abd: iterator mapped twice")
	}
	a := it.abd
	if it.pos == a.size {
		return
	}

	if a.isLinearLocked() {
		it.mapped = a.buf[it.pos:]
		return
	}

	// An ABD allocated under a different chunk size cannot be addressed
	// correctly; this is a fatal configuration race.
	if a.chunkSize != mod().chunkSize {
		panic(fmt.Sprintf("abd: ABD chunk size %d does not match configured chunk size %d",
			a.chunkSize, mod().chunkSize))
	}

	idx := (a.innerOffset + it.pos) / a.chunkSize
	chunkOff := (a.innerOffset + it.pos) % a.chunkSize
	it.mapped = a.chunks[idx][chunkOff:]
}

// unmap releases the current window. Does nothing once the cursor is
// exhausted.
func (it *iter) unmap() {
	if it.pos == it.abd.size {
		return
	}
	if it.mapped == nil {
		panic("abd: iterator unmapped while not mapped")
	}
	it.mapped = nil
}

// IterateFunc walks size bytes of the payload starting at off, invoking
// fn on successive windows. The first non-zero return from fn stops the
// walk and is returned. The ABD's lock is held for the whole walk.
func (a *ABD) IterateFunc(off, size int, fn IterFunc) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyLocked()
	if off+size > a.size {
		panic(fmt.Sprintf("abd: iterate range [%d, %d) beyond size %d", off, off+size, a.size))
	}

	var it iter
	it.init(a)
	it.advance(off)

	ret := 0
	for size > 0 {
		it.mapChunk()

		n := min(len(it.mapped), size)
		ret = fn(it.mapped[:n])

		it.unmap()

		if ret != 0 {
			break
		}
		size -= n
		it.advance(n)
	}
	return ret
}

// IterateFunc2 walks two ABDs in lock-step, invoking fn on paired
// equal-length windows. Locks are taken dst first, then src; callers must
// never run IterateFunc2(a, b) and IterateFunc2(b, a) concurrently.
func IterateFunc2(dabd, sabd *ABD, doff, soff, size int, fn IterFunc2) int {
	if dabd == sabd {
		panic("abd: IterateFunc2 with the same ABD on both sides")
	}

	dabd.mu.Lock()
	defer dabd.mu.Unlock()
	sabd.mu.Lock()
	defer sabd.mu.Unlock()
	dabd.verifyLocked()
	sabd.verifyLocked()
	if doff+size > dabd.size {
		panic(fmt.Sprintf("abd: iterate range [%d, %d) beyond destination size %d", doff, doff+size, dabd.size))
	}
	if soff+size > sabd.size {
		panic(fmt.Sprintf("abd: iterate range [%d, %d) beyond source size %d", soff, soff+size, sabd.size))
	}

	var dit, sit iter
	dit.init(dabd)
	sit.init(sabd)
	dit.advance(doff)
	sit.advance(soff)

	ret := 0
	for size > 0 {
		dit.mapChunk()
		sit.mapChunk()

		n := min(len(dit.mapped), len(sit.mapped), size)
		ret = fn(dit.mapped[:n], sit.mapped[:n])

		sit.unmap()
		dit.unmap()

		if ret != 0 {
			break
		}
		size -= n
		dit.advance(n)
		sit.advance(n)
	}
	return ret
}
