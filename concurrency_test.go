package abd

import (
	"sync"
	"testing"

	"abd/internal/abdtest"
)

// Exercises parallel allocation, iteration, viewing and moving. Mostly
// meaningful under -race; each round checks view and payload contents,
// and the counters are checked for conservation afterwards.
func TestParallelAllocateIterateMove(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			pattern := abdtest.Pattern(1500)
			for range rounds {
				var a *ABD
				if w%2 == 0 {
					a = Alloc(1500, false)
				} else {
					a = AllocLinear(1500, false)
				}
				a.CopyFromBuf(pattern)

				v := a.GetOffsetSize(700, 300)
				if v.CmpBuf(pattern[700:1000]) != 0 {
					t.Error("view read wrong bytes")
				}
				v.Put()

				a.TryMove()
				if a.CmpBuf(pattern) != 0 {
					t.Error("payload corrupted")
				}
				a.Free()
			}
		})
	}
	wg.Wait()

	st := ReadStats()
	if st.ScatterCnt != 0 || st.LinearCnt != 0 {
		t.Fatalf("live counters %d/%d after the run, want zeros", st.ScatterCnt, st.LinearCnt)
	}
	if st.StructSize != 0 {
		t.Fatalf("struct size %d after the run, want 0", st.StructSize)
	}
}

// Two fixed ABDs shared across workers: lock-step copies in one direction
// only (the dual-iterator lock order forbids opposing directions).
func TestParallelSharedPairCopy(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	src := Alloc(4096, false)
	defer src.Free()
	src.CopyFromBuf(abdtest.Pattern(4096))
	dst := Alloc(4096, false)
	defer dst.Free()

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 25 {
				Copy(dst, src, 4096)
			}
		})
	}
	wg.Wait()

	if Cmp(dst, src, 4096) != 0 {
		t.Fatal("destination differs from source after parallel copies")
	}
}
