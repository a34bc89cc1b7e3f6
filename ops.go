package abd

import (
	"bytes"
	"fmt"
)

// The public buffer operations are thin wrappers over the iterators; each
// supplies only the per-window callback.

// CopyToBufOff copies size payload bytes starting at off into buf.
func (a *ABD) CopyToBufOff(buf []byte, off, size int) {
	if size > len(buf) {
		panic(fmt.Sprintf("abd: copy of %d bytes into a %d byte buffer", size, len(buf)))
	}
	pos := 0
	a.IterateFunc(off, size, func(window []byte) int {
		pos += copy(buf[pos:], window)
		return 0
	})
}

// CopyToBuf copies the first len(buf) payload bytes into buf.
func (a *ABD) CopyToBuf(buf []byte) {
	a.CopyToBufOff(buf, 0, len(buf))
}

// CopyFromBufOff copies size bytes of buf into the payload at off.
func (a *ABD) CopyFromBufOff(buf []byte, off, size int) {
	if size > len(buf) {
		panic(fmt.Sprintf("abd: copy of %d bytes from a %d byte buffer", size, len(buf)))
	}
	pos := 0
	a.IterateFunc(off, size, func(window []byte) int {
		pos += copy(window, buf[pos:])
		return 0
	})
}

// CopyFromBuf copies all of buf into the payload at offset 0.
func (a *ABD) CopyFromBuf(buf []byte) {
	a.CopyFromBufOff(buf, 0, len(buf))
}

// CmpBufOff compares size payload bytes starting at off against buf,
// returning the first non-zero bytes.Compare result, or 0 on equality.
func (a *ABD) CmpBufOff(buf []byte, off, size int) int {
	if size > len(buf) {
		panic(fmt.Sprintf("abd: compare of %d bytes against a %d byte buffer", size, len(buf)))
	}
	pos := 0
	return a.IterateFunc(off, size, func(window []byte) int {
		ret := bytes.Compare(window, buf[pos:pos+len(window)])
		pos += len(window)
		return ret
	})
}

// CmpBuf compares the first len(buf) payload bytes against buf.
func (a *ABD) CmpBuf(buf []byte) int {
	return a.CmpBufOff(buf, 0, len(buf))
}

// ZeroOff zeroes size payload bytes starting at off.
func (a *ABD) ZeroOff(off, size int) {
	a.IterateFunc(off, size, func(window []byte) int {
		clear(window)
		return 0
	})
}

// Zero zeroes the whole payload.
func (a *ABD) Zero() {
	a.ZeroOff(0, a.Size())
}

// CopyOff copies size bytes from sabd at soff into dabd at doff.
func CopyOff(dabd, sabd *ABD, doff, soff, size int) {
	IterateFunc2(dabd, sabd, doff, soff, size, func(dbuf, sbuf []byte) int {
		copy(dbuf, sbuf)
		return 0
	})
}

// Copy copies size bytes between two ABDs starting at offset 0.
func Copy(dabd, sabd *ABD, size int) {
	CopyOff(dabd, sabd, 0, 0, size)
}

// Cmp compares two equal-size ABDs, returning the first non-zero
// bytes.Compare result, or 0 if the payloads are identical.
func Cmp(dabd, sabd *ABD, size int) int {
	if dabd.Size() != size || sabd.Size() != size {
		panic(fmt.Sprintf("abd: Cmp sizes %d and %d, want %d", dabd.Size(), sabd.Size(), size))
	}
	return IterateFunc2(dabd, sabd, 0, 0, size, func(dbuf, sbuf []byte) int {
		return bytes.Compare(dbuf, sbuf)
	})
}
