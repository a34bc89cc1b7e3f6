package abd

import (
	"strings"
	"testing"
)

func TestWriteMetrics(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	a := Alloc(1500, false)
	defer a.Free()

	var sb strings.Builder
	WriteMetrics(&sb)
	out := sb.String()

	for _, want := range []string{
		"# TYPE abd_scatter_count gauge",
		"abd_scatter_count 1",
		"abd_scatter_data_bytes 1500",
		"# TYPE abd_moved_linear_total counter",
		"abd_chunk_pool_allocated 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestStructSizeAccounting(t *testing.T) {
	setup(t, Config{ChunkSize: 512})

	if got := ReadStats().StructSize; got != 0 {
		t.Fatalf("struct size %d before any allocation, want 0", got)
	}

	a := Alloc(2048, false)
	if got := ReadStats().StructSize; got <= 0 {
		t.Fatalf("struct size %d with a live handle, want positive", got)
	}

	v := a.GetOffset(100)
	withView := ReadStats().StructSize
	v.Put()
	if got := ReadStats().StructSize; got >= withView {
		t.Fatalf("struct size %d after put, want below %d", got, withView)
	}

	a.Free()
	if got := ReadStats().StructSize; got != 0 {
		t.Fatalf("struct size %d after freeing everything, want 0", got)
	}
}
