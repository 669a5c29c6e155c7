package pmm

import "testing"

func freshAllocator(nframes int) *Allocator {
	return New([]MapEntry{{Base: 0, Length: uintptr(nframes * PGSIZE), Kind: Usable}})
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := freshAllocator(8)
	if got := a.FreeBytes(); got != 8*PGSIZE {
		t.Fatalf("free bytes = %d", got)
	}
	f, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	if got := a.FreeBytes(); got != 7*PGSIZE {
		t.Fatalf("free bytes after alloc = %d", got)
	}
	a.Free(f)
	if got := a.FreeBytes(); got != 8*PGSIZE {
		t.Fatalf("free bytes after free = %d", got)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := freshAllocator(2)
	f, _ := a.Alloc()
	a.Free(f)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Free(f)
}

func TestAllocContiguous(t *testing.T) {
	a := freshAllocator(16)
	// Fragment: take frames 0-2, then give back frame 2 so 0-1 stay in use.
	a.Alloc()
	a.Alloc()
	a.Alloc()
	f2 := Frame(2)
	a.Free(f2)
	// Now frames 0,1 are used and 2-15 free: the first 4-frame run starts at 2.
	start, ok := a.AllocContiguous(4)
	if !ok || start != 2 {
		t.Fatalf("start=%v ok=%v", start, ok)
	}
}

func TestExhaustion(t *testing.T) {
	a := freshAllocator(2)
	a.Alloc()
	a.Alloc()
	if _, ok := a.Alloc(); ok {
		t.Fatal("expected exhaustion")
	}
}

func TestReservedGapNotAllocated(t *testing.T) {
	a := New([]MapEntry{
		{Base: 0, Length: PGSIZE, Kind: Usable},
		{Base: PGSIZE, Length: PGSIZE, Kind: Reserved},
		{Base: 2 * PGSIZE, Length: PGSIZE, Kind: Usable},
	})
	if got := a.FreeBytes(); got != 2*PGSIZE {
		t.Fatalf("free bytes = %d, want 2 pages", got)
	}
}
