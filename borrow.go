package abd

import (
	"fmt"

	"abd/internal/chunkpool"
)

// BorrowBuf loans out a contiguous buffer for the first n payload bytes.
// For linear ABDs the loan is the underlying buffer itself; for scattered
// ABDs it is a scratch buffer from the I/O pool with undefined contents —
// use BorrowBufCopy to start from the payload. Either way the loan counts
// as a child and pins the ABD until returned.
func (a *ABD) BorrowBuf(n int) []byte {
	m := mod()

	buf := func() []byte {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.verifyLocked()
		if n <= 0 || n > a.size {
			panic(fmt.Sprintf("abd: borrow of %d bytes from a %d byte ABD", n, a.size))
		}

		var buf []byte
		if a.isLinearLocked() {
			buf = a.buf[:n]
		} else {
			buf = m.bufs.AllocBuf(n, chunkpool.KindData)
		}
		a.children += int64(n)
		a.flags |= flagNomove
		return buf
	}()

	m.stats.borrowedBufCnt.Add(1)
	return buf
}

// BorrowBufCopy is BorrowBuf with the payload copied into the loan.
func (a *ABD) BorrowBufCopy(n int) []byte {
	buf := a.BorrowBuf(n)
	if !a.IsLinear() {
		a.CopyToBuf(buf)
	}
	return buf
}

// ReturnBuf gives back a loan from BorrowBuf without writing anything to
// the payload. For scattered ABDs the scratch buffer must still equal the
// payload byte for byte: a mismatch means the borrower mutated a buffer
// it promised not to, and is fatal. Use ReturnBufCopy to keep changes.
func (a *ABD) ReturnBuf(buf []byte) {
	a.returnBuf(buf, 0, len(buf))
}

// ReturnBufCopy writes the scratch buffer back into the payload (a no-op
// for linear ABDs, which alias it) and gives back the loan.
func (a *ABD) ReturnBufCopy(buf []byte) {
	a.verify()
	if !a.IsLinear() {
		a.CopyFromBuf(buf)
	}
	a.ReturnBuf(buf)
}

// ReturnBufOff is ReturnBuf with the integrity check restricted to
// [off, off+length) — for borrowers that only touched part of the loan.
func (a *ABD) ReturnBufOff(buf []byte, off, length int) {
	a.returnBuf(buf, off, length)
}

// ReturnBufCopyOff writes back only [off, off+length) of the scratch
// buffer, then gives back the loan.
func (a *ABD) ReturnBufCopyOff(buf []byte, off, length int) {
	a.verify()
	if !a.IsLinear() {
		if off+length > a.Size() {
			panic(fmt.Sprintf("abd: write-back range [%d, %d) beyond size %d", off, off+length, a.Size()))
		}
		a.CopyFromBufOff(buf[off:off+length], off, length)
	}
	a.returnBuf(buf, off, length)
}

func (a *ABD) returnBuf(buf []byte, off, length int) {
	m := mod()
	n := len(buf)

	a.verify()
	if n > a.Size() {
		panic(fmt.Sprintf("abd: return of %d bytes to a %d byte ABD", n, a.Size()))
	}
	if off+length > n {
		panic(fmt.Sprintf("abd: return range [%d, %d) beyond loan of %d bytes", off, off+length, n))
	}

	if a.IsLinear() {
		if &buf[0] != &a.ToBufEphemeral()[0] {
			panic("abd: returned buffer is not this ABD's buffer")
		}
	} else {
		if a.CmpBufOff(buf[off:off+length], off, length) != 0 {
			panic("abd: borrowed buffer was modified before return")
		}
		m.bufs.FreeBuf(buf, n, chunkpool.KindData)
	}

	func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.children -= int64(n)
		if a.children < 0 {
			panic("abd: children refcount went negative on return")
		}
		if a.children == 0 {
			a.flags &^= flagNomove
		}
	}()

	m.stats.borrowedBufCnt.Add(-1)
}
