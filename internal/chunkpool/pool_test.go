package chunkpool

import (
	"testing"
)

func TestPoolRejectsBadChunkSize(t *testing.T) {
	for _, size := range []int{0, -1, 3, 1000} {
		if _, err := NewPool(size, nil); err == nil {
			t.Errorf("NewPool(%d) succeeded, want error", size)
		}
	}
}

func TestPoolAllocFree(t *testing.T) {
	p, err := NewPool(512, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	c := p.AllocChunk()
	if len(c) != 512 {
		t.Fatalf("chunk size %d, want 512", len(c))
	}
	if got := p.Stats().Allocated; got != 1 {
		t.Fatalf("allocated %d, want 1", got)
	}

	p.FreeChunk(c)
	st := p.Stats()
	if st.Allocated != 0 {
		t.Fatalf("allocated %d after free, want 0", st.Allocated)
	}
	if st.FreelistLen != 1 {
		t.Fatalf("freelist length %d, want 1", st.FreelistLen)
	}
}

func TestPoolFreelistReuse(t *testing.T) {
	p, err := NewPool(512, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	c := p.AllocChunk()
	c[0] = 0xAB
	p.FreeChunk(c)

	c2 := p.AllocChunk()
	if &c2[0] != &c[0] {
		t.Fatal("expected freelist to recycle the chunk")
	}
	if p.Stats().FreelistHits != 1 {
		t.Fatalf("freelist hits %d, want 1", p.Stats().FreelistHits)
	}
}

func TestPoolFreeToSlabBypassesFreelist(t *testing.T) {
	p, err := NewPool(512, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	c := p.AllocChunk()
	p.FreeChunkToSlab(c)

	st := p.Stats()
	if st.FreelistLen != 0 {
		t.Fatalf("freelist length %d after slab free, want 0", st.FreelistLen)
	}
	if st.SlabFrees != 1 {
		t.Fatalf("slab frees %d, want 1", st.SlabFrees)
	}

	c2 := p.AllocChunk()
	if &c2[0] == &c[0] {
		t.Fatal("slab-freed chunk must not be recycled")
	}
}

func TestPoolDrainCaches(t *testing.T) {
	p, err := NewPool(512, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	chunks := make([][]byte, 4)
	for i := range chunks {
		chunks[i] = p.AllocChunk()
	}
	for _, c := range chunks {
		p.FreeChunk(c)
	}
	if p.Stats().FreelistLen != 4 {
		t.Fatalf("freelist length %d, want 4", p.Stats().FreelistLen)
	}

	p.DrainCaches()
	if p.Stats().FreelistLen != 0 {
		t.Fatalf("freelist length %d after drain, want 0", p.Stats().FreelistLen)
	}
}

func TestPoolWrongSizeFreePanics(t *testing.T) {
	p, err := NewPool(512, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing a wrong-size chunk")
		}
	}()
	p.FreeChunk(make([]byte, 256))
}

func TestClassFor(t *testing.T) {
	cases := []struct {
		size, class int
	}{
		{1, 512},
		{512, 512},
		{513, 1024},
		{1024, 1024},
		{1500, 2048},
		{16 << 20, 16 << 20},
	}
	for _, tc := range cases {
		if got := classFor(tc.size); got != tc.class {
			t.Errorf("classFor(%d) = %d, want %d", tc.size, got, tc.class)
		}
	}
}

func TestBufPoolRoundTrip(t *testing.T) {
	bp := NewBufPool(nil)

	b := bp.AllocBuf(1500, KindData)
	if len(b) != 1500 {
		t.Fatalf("buffer size %d, want 1500", len(b))
	}
	if cap(b) != 2048 {
		t.Fatalf("buffer capacity %d, want class 2048", cap(b))
	}
	if bp.Allocated(KindData) != 1 {
		t.Fatalf("allocated %d, want 1", bp.Allocated(KindData))
	}

	bp.FreeBuf(b, 1500, KindData)
	if bp.Allocated(KindData) != 0 {
		t.Fatalf("allocated %d after free, want 0", bp.Allocated(KindData))
	}

	// Same class allocation recycles the buffer.
	b2 := bp.AllocBuf(2000, KindData)
	if &b2[0] != &b[0] {
		t.Fatal("expected class freelist to recycle the buffer")
	}
}

func TestBufPoolKindsAreSeparate(t *testing.T) {
	bp := NewBufPool(nil)

	b := bp.AllocBuf(1024, KindMetadata)
	bp.FreeBuf(b, 1024, KindMetadata)

	// A data allocation of the same class must not see the metadata freelist.
	b2 := bp.AllocBuf(1024, KindData)
	if &b2[0] == &b[0] {
		t.Fatal("data allocation recycled a metadata buffer")
	}
}
