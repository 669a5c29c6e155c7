package vmm

import (
	"testing"

	"kernos/internal/mem/pmm"
)

func fresh(t *testing.T) (*Manager, *pmm.Allocator) {
	t.Helper()
	a := pmm.New([]pmm.MapEntry{{Base: 0, Length: 4096 * 4096, Kind: pmm.Usable}})
	return New(a), a
}

func TestMapTranslateUnmap(t *testing.T) {
	m, p := fresh(t)
	root, err := m.CreateAddressSpace()
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	data, _ := p.Alloc()
	va := USERMIN
	if err := m.MapIn(root, va, data, PTE_P|PTE_W|PTE_U); err != 0 {
		t.Fatalf("map: %v", err)
	}
	got, ok := m.Translate(root, va)
	if !ok || got != data {
		t.Fatalf("translate got %v ok %v want %v", got, ok, data)
	}
	if !m.IsUserRange(root, va, 10) {
		t.Fatal("expected user range valid")
	}
	m.Unmap(root, va)
	if _, ok := m.Translate(root, va); ok {
		t.Fatal("expected unmapped")
	}
}

func TestIsUserRangeRejectsKernelOnly(t *testing.T) {
	m, p := fresh(t)
	root, _ := m.CreateAddressSpace()
	data, _ := p.Alloc()
	// Map without PTE_U: kernel-only page.
	m.MapIn(root, USERMIN, data, PTE_P|PTE_W)
	if m.IsUserRange(root, USERMIN, 1) {
		t.Fatal("kernel-only page should not be a valid user range")
	}
}

func TestCloneAddressSpaceDeepCopies(t *testing.T) {
	m, p := fresh(t)
	root, _ := m.CreateAddressSpace()
	data, _ := p.Alloc()
	buf := p.Dmap(data)
	buf[0] = 0x42
	m.MapIn(root, USERMIN, data, PTE_P|PTE_W|PTE_U)

	clone, err := m.CloneAddressSpace(root)
	if err != 0 {
		t.Fatalf("clone: %v", err)
	}
	cf, ok := m.Translate(clone, USERMIN)
	if !ok {
		t.Fatal("clone missing mapping")
	}
	if cf == data {
		t.Fatal("clone must allocate a fresh frame, not alias the source")
	}
	if got := p.Dmap(cf)[0]; got != 0x42 {
		t.Fatalf("clone data = %x, want 0x42", got)
	}
	// Mutating the clone must not affect the original (true copy).
	p.Dmap(cf)[0] = 0x99
	if got := p.Dmap(data)[0]; got != 0x42 {
		t.Fatalf("source mutated via clone: got %x", got)
	}
}

func TestDestroyUserMappingsFreesFrames(t *testing.T) {
	m, p := fresh(t)
	before := p.FreeBytes()
	root, _ := m.CreateAddressSpace()
	data, _ := p.Alloc()
	m.MapIn(root, USERMIN, data, PTE_P|PTE_W|PTE_U)
	m.DestroyUserMappings(root)
	m.DestroyAddressSpace(root)
	after := p.FreeBytes()
	if after != before {
		t.Fatalf("expected all frames reclaimed: before=%d after=%d", before, after)
	}
}

func TestKernelHalfSharedAcrossSpaces(t *testing.T) {
	m, p := fresh(t)
	kf, _ := p.Alloc()
	m.InstallKernelMapping(300, uint64(kf)<<pgshift|PTE_P|PTE_W)

	r1, _ := m.CreateAddressSpace()
	r2, _ := m.CreateAddressSpace()

	// A PML4 slot points at a PDPT rather than at a page, so compare the
	// slot each root carries instead of translating through it.
	entry := uint64(kf)<<pgshift | PTE_P | PTE_W
	e1 := m.readEntry(m.spaces[r1], 300)
	e2 := m.readEntry(m.spaces[r2], 300)
	if e1 != entry || e2 != entry {
		t.Fatalf("expected both spaces to share kernel mapping: %#x %#x", e1, e2)
	}
}
