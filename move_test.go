package abd

import (
	"testing"
	"time"

	"abd/internal/abdtest"
)

func TestMoveScatteredPreservesContents(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(4096, false)
	defer a.Free()
	a.CopyFromBuf(abdtest.Repeat(0xAB, 4096))

	old := make([]*byte, len(a.chunks))
	for i := range a.chunks {
		old[i] = &a.chunks[i][0]
	}
	flagsBefore := a.flags

	if !a.TryMove() {
		t.Fatal("TryMove refused a quiescent ABD")
	}

	for i := range a.chunks {
		if &a.chunks[i][0] == old[i] {
			t.Fatalf("chunk %d was not relocated", i)
		}
	}
	if a.Size() != 4096 {
		t.Fatalf("size %d after move, want 4096", a.Size())
	}
	if a.flags != flagsBefore {
		t.Fatalf("flags %#x after move, want %#x", a.flags, flagsBefore)
	}
	if a.parent != nil {
		t.Fatal("parent changed by move")
	}
	if a.CmpBuf(abdtest.Repeat(0xAB, 4096)) != 0 {
		t.Fatal("payload changed by move")
	}
	if ReadStats().MovedScatteredFiledata != 1 {
		t.Fatalf("moved counter %d, want 1", ReadStats().MovedScatteredFiledata)
	}
}

func TestMoveScatteredMetadataCounter(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(1024, true)
	defer a.Free()
	if !a.TryMove() {
		t.Fatal("TryMove refused a quiescent ABD")
	}
	if ReadStats().MovedScatteredMetadata != 1 {
		t.Fatalf("moved metadata counter %d, want 1", ReadStats().MovedScatteredMetadata)
	}
}

func TestMoveLinearPreservesContents(t *testing.T) {
	setup(t, Config{})

	a := AllocLinear(2048, false)
	defer a.Free()
	a.CopyFromBuf(abdtest.Pattern(2048))
	old := &a.buf[0]

	if !a.TryMove() {
		t.Fatal("TryMove refused a quiescent linear ABD")
	}
	if &a.buf[0] == old {
		t.Fatal("linear buffer was not relocated")
	}
	if a.CmpBuf(abdtest.Pattern(2048)) != 0 {
		t.Fatal("payload changed by move")
	}
	if ReadStats().MovedLinear != 1 {
		t.Fatalf("moved linear counter %d, want 1", ReadStats().MovedLinear)
	}
}

func TestMoveBlockedByView(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(4096, false)
	defer a.Free()

	v := a.GetOffset(0)
	if a.TryMove() {
		t.Fatal("TryMove succeeded with a live view")
	}
	// Refusal is counted: the view set the no-move flag.
	st := ReadStats()
	if st.MoveToBufFlagFail+st.MoveRefcountNonzero == 0 {
		t.Fatal("refused move was not counted")
	}

	v.Put()
	if !a.TryMove() {
		t.Fatal("TryMove failed after the view was put")
	}
}

func TestMoveRefcountCounter(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(1024, false)
	defer a.Free()

	// Force the refcount path: children nonzero with the flag clear does
	// not occur through the public API (the flag is raised eagerly), so
	// stage it directly.
	a.mu.Lock()
	a.children = 1
	a.mu.Unlock()
	if a.TryMove() {
		t.Fatal("TryMove succeeded with nonzero children")
	}
	if ReadStats().MoveRefcountNonzero != 1 {
		t.Fatalf("refcount-nonzero counter %d, want 1", ReadStats().MoveRefcountNonzero)
	}
	a.mu.Lock()
	a.children = 0
	a.mu.Unlock()
}

func TestMoveRefusedAfterToBuf(t *testing.T) {
	setup(t, Config{})

	a := AllocLinear(512, false)
	defer a.Free()

	a.ToBuf()
	if a.TryMove() {
		t.Fatal("TryMove succeeded after ToBuf")
	}
	if ReadStats().MoveToBufFlagFail != 1 {
		t.Fatalf("flag-fail counter %d, want 1", ReadStats().MoveToBufFlagFail)
	}
}

func TestMoveRefreshesCreateTime(t *testing.T) {
	clock := time.Unix(1000, 0)
	setup(t, Config{ChunkSize: 512, Now: func() time.Time { return clock }})

	a := Alloc(1024, false)
	defer a.Free()
	if !a.CreateTime().Equal(time.Unix(1000, 0)) {
		t.Fatalf("create time %v, want allocation time", a.CreateTime())
	}

	clock = time.Unix(2000, 0)
	if !a.TryMove() {
		t.Fatal("TryMove refused a quiescent ABD")
	}
	if !a.CreateTime().Equal(time.Unix(2000, 0)) {
		t.Fatalf("create time %v after move, want refreshed", a.CreateTime())
	}
}

func TestMoveRoutesOldChunksToSlab(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(2048, false)
	defer a.Free()

	before := mod().pool.Stats().SlabFrees
	if !a.TryMove() {
		t.Fatal("TryMove refused a quiescent ABD")
	}
	after := mod().pool.Stats().SlabFrees
	if after-before != 4 {
		t.Fatalf("slab frees grew by %d, want 4 (one per chunk)", after-before)
	}
}
