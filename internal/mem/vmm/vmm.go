// Package vmm implements x86_64 four-level paging: per-address-space
// creation, map/unmap, clone (the fork primitive), teardown, and the
// user-pointer validation the syscall layer needs before every
// dereference. Grounded on Biscuit's vm.Vm_t / mem.Pmap_t
// (biscuit/src/vm/as.go, biscuit/src/mem/dmap.go): the kernel half of
// every address space is shared by reference and the user half is deep
// copied on clone.
//
// Table pages are stored as ordinary PMM frames (512 little-endian uint64
// entries each, exactly PGSIZE bytes) rather than walked via unsafe
// pointers, since this port runs as hosted Go rather than atop a patched
// runtime; the byte layout of each entry is still exactly the x86_64 PTE
// layout spec §4.2 names.
package vmm

import (
	"encoding/binary"
	"sync"

	"kernos/internal/bounds"
	"kernos/internal/errno"
	"kernos/internal/mem/pmm"
	"kernos/internal/res"
)

// PTE flag bits, matching Biscuit's mem.PTE_* constants bit-for-bit.
const (
	PTE_P  uint64 = 1 << 0
	PTE_W  uint64 = 1 << 1
	PTE_U  uint64 = 1 << 2
	PTE_PCD uint64 = 1 << 4
	PTE_PS uint64 = 1 << 7
	PTE_G  uint64 = 1 << 8
	PTE_COW uint64 = 1 << 9
	PTE_WASCOW uint64 = 1 << 10
	PTE_NX uint64 = 1 << 63
	pteAddrMask uint64 = 0x000f_ffff_ffff_f000
)

// USERMIN is the lowest user virtual address, matching Biscuit's
// VUSER<<39 scheme structurally (a fixed high canonical-form floor).
const USERMIN uint64 = 0x0000_5900_0000_0000

const pgshift = pmm.PGSHIFT

// Root identifies an address space's top-level table the way a CR3 value
// would on real hardware: here it's an index into the manager's space
// table, backed by a PMM frame that holds the PML4's 512 entries.
type Root uint64

type Manager struct {
	mu     sync.Mutex
	pmm    *pmm.Allocator
	kernel [512]uint64 // shared upper-half PML4 entries, by reference
	spaces map[Root]pmm.Frame
	nextID uint64
}

// New creates a VMM manager over the given physical allocator.
func New(p *pmm.Allocator) *Manager {
	return &Manager{pmm: p, spaces: make(map[Root]pmm.Frame)}
}

func (m *Manager) readEntry(f pmm.Frame, idx int) uint64 {
	b := m.pmm.Dmap(f)
	return binary.LittleEndian.Uint64(b[idx*8:])
}

func (m *Manager) writeEntry(f pmm.Frame, idx int, v uint64) {
	b := m.pmm.Dmap(f)
	binary.LittleEndian.PutUint64(b[idx*8:], v)
}

func vaIndex(va uint64, level int) int {
	shift := uint(pgshift + 9*level)
	return int((va >> shift) & 0x1ff)
}

// CreateAddressSpace allocates a new PML4 frame whose upper half (kernel
// half) is copied by reference from the manager's kernel table, matching
// spec §4.2: "the lower half is empty."
func (m *Manager) CreateAddressSpace() (Root, errno.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.pmm.Alloc()
	if !ok {
		return 0, errno.ENOMEM
	}
	for i := 256; i < 512; i++ {
		m.writeEntry(f, i, m.kernel[i])
	}
	m.nextID++
	r := Root(m.nextID)
	m.spaces[r] = f
	return r, 0
}

// InstallKernelMapping records a kernel-half PML4 slot shared by every
// address space, matching Biscuit's mem.Kents bookkeeping.
func (m *Manager) InstallKernelMapping(pml4slot int, entry uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kernel[pml4slot] = entry
	for _, f := range m.spaces {
		m.writeEntry(f, pml4slot, entry)
	}
}

func (m *Manager) rootFrame(r Root) (pmm.Frame, bool) {
	f, ok := m.spaces[r]
	return f, ok
}

// walk finds (allocating intermediate tables if alloc is true) the leaf
// PTE frame+index for va, returning ok=false if a table is missing and
// alloc is false.
func (m *Manager) walk(root pmm.Frame, va uint64, alloc bool) (frame pmm.Frame, idx int, ok bool) {
	cur := root
	for level := 3; level >= 1; level-- {
		i := vaIndex(va, level)
		e := m.readEntry(cur, i)
		if e&PTE_P == 0 {
			if !alloc {
				return 0, 0, false
			}
			nf, got := m.pmm.Alloc()
			if !got {
				return 0, 0, false
			}
			perms := PTE_P | PTE_W
			if va < USERMIN {
				// kernel-half intermediate tables are never user-accessible
			} else {
				perms |= PTE_U
			}
			m.writeEntry(cur, i, uint64(nf)<<pgshift|perms)
			cur = nf
		} else {
			cur = pmm.Frame((e & pteAddrMask) >> pgshift)
		}
	}
	return cur, vaIndex(va, 0), true
}

// MapIn maps virt to phys with the given flags in the address space root.
func (m *Manager) MapIn(root Root, virt uint64, phys pmm.Frame, flags uint64) errno.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.rootFrame(root)
	if !ok {
		return errno.EFAULT
	}
	f, idx, ok := m.walk(rf, virt, true)
	if !ok {
		return errno.ENOMEM
	}
	m.writeEntry(f, idx, uint64(phys)<<pgshift|flags|PTE_P)
	return 0
}

// Map is MapIn against the "current" address space convention used by the
// rest of the kernel for brevity at boot time, before any process exists.
func (m *Manager) Map(root Root, virt uint64, phys pmm.Frame, flags uint64) errno.Err_t {
	return m.MapIn(root, virt, phys, flags)
}

// Unmap clears the mapping for virt, if any, without freeing the
// underlying frame (callers that own the frame free it separately).
func (m *Manager) Unmap(root Root, virt uint64) errno.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.rootFrame(root)
	if !ok {
		return errno.EFAULT
	}
	f, idx, ok := m.walk(rf, virt, false)
	if !ok {
		return 0
	}
	m.writeEntry(f, idx, 0)
	return 0
}

// Translate returns the physical frame virt maps to, or ok=false.
func (m *Manager) Translate(root Root, virt uint64) (pmm.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.rootFrame(root)
	if !ok {
		return 0, false
	}
	f, idx, ok := m.walk(rf, virt, false)
	if !ok {
		return 0, false
	}
	e := m.readEntry(f, idx)
	if e&PTE_P == 0 {
		return 0, false
	}
	return pmm.Frame((e & pteAddrMask) >> pgshift), true
}

func (m *Manager) pteAt(root Root, virt uint64) (uint64, bool) {
	rf, ok := m.rootFrame(root)
	if !ok {
		return 0, false
	}
	f, idx, ok := m.walk(rf, virt, false)
	if !ok {
		return 0, false
	}
	return m.readEntry(f, idx), true
}

// IsUserRange verifies every page in [ptr, ptr+len) has PRESENT|USER set,
// matching spec §4.2 exactly. It is the gate every syscall argument
// pointer passes through before dereference (spec §4.9).
func (m *Manager) IsUserRange(root Root, ptr uint64, ln int) bool {
	if ln <= 0 {
		return ln == 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start := ptr &^ (pmm.PGSIZE - 1)
	end := (ptr + uint64(ln) - 1) &^ (pmm.PGSIZE - 1)
	for va := start; ; va += pmm.PGSIZE {
		e, ok := m.pteAt(root, va)
		if !ok || e&(PTE_P|PTE_U) != PTE_P|PTE_U {
			return false
		}
		if va == end {
			break
		}
	}
	return true
}

// CloneAddressSpace deep-copies every user-half mapping: every page
// reachable in the source is allocated fresh in the destination and its
// data copied via the PMM direct map, matching spec §4.2's description of
// the fork primitive (O(mapped user pages)).
func (m *Manager) CloneAddressSpace(src Root) (Root, errno.Err_t) {
	m.mu.Lock()
	srcFrame, ok := m.spaces[src]
	m.mu.Unlock()
	if !ok {
		return 0, errno.EFAULT
	}
	dst, err := m.CreateAddressSpace()
	if err != 0 {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dstFrame := m.spaces[dst]
	if cerr := m.cloneLevel(srcFrame, dstFrame, 3, 0); cerr != 0 {
		return 0, cerr
	}
	return dst, 0
}

// cloneLevel recurses the user half (PML4 index < 256) of the page table
// tree, allocating fresh intermediate tables and, at the leaf level,
// fresh data frames whose contents are copied byte-for-byte.
func (m *Manager) cloneLevel(srcT, dstT pmm.Frame, level int, vaPrefix uint64) errno.Err_t {
	lo, hi := 0, 512
	if level == 3 {
		hi = 256 // user half only
	}
	for i := lo; i < hi; i++ {
		e := m.readEntry(srcT, i)
		if e&PTE_P == 0 {
			continue
		}
		srcChild := pmm.Frame((e & pteAddrMask) >> pgshift)
		flags := e &^ pteAddrMask
		if level == 0 {
			nf, ok := m.pmm.Alloc()
			if !ok {
				return errno.ENOMEM
			}
			copy(m.pmm.Dmap(nf), m.pmm.Dmap(srcChild))
			m.writeEntry(dstT, i, uint64(nf)<<pgshift|flags)
			continue
		}
		nf, ok := m.pmm.Alloc()
		if !ok {
			return errno.ENOMEM
		}
		m.writeEntry(dstT, i, uint64(nf)<<pgshift|flags)
		if err := m.cloneLevel(srcChild, nf, level-1, 0); err != 0 {
			return err
		}
	}
	return 0
}

// DestroyUserMappings walks the user half, frees every data frame and
// intermediate table frame, and leaves the root empty so the caller can
// free it, matching spec §4.2.
func (m *Manager) DestroyUserMappings(root Root) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.rootFrame(root)
	if !ok {
		return
	}
	for i := 0; i < 256; i++ {
		e := m.readEntry(rf, i)
		if e&PTE_P == 0 {
			continue
		}
		child := pmm.Frame((e & pteAddrMask) >> pgshift)
		m.freeLevel(child, 3)
		m.writeEntry(rf, i, 0)
	}
}

func (m *Manager) freeLevel(t pmm.Frame, level int) {
	if level > 0 {
		for i := 0; i < 512; i++ {
			e := m.readEntry(t, i)
			if e&PTE_P == 0 {
				continue
			}
			child := pmm.Frame((e & pteAddrMask) >> pgshift)
			m.freeLevel(child, level-1)
		}
	}
	m.pmm.Free(t)
}

// MapAnonPage allocates a fresh zeroed frame and maps it at virt (which
// must already be page-aligned) with flags, returning the frame's backing
// bytes so the caller can populate it directly. This is the one place
// outside CloneAddressSpace that hands a process brand new memory, so the
// ELF loader and the syscall layer's brk/mmap(MAP_ANONYMOUS) bumping both
// go through it.
func (m *Manager) MapAnonPage(root Root, virt uint64, flags uint64) ([]byte, errno.Err_t) {
	if virt&(pmm.PGSIZE-1) != 0 {
		return nil, errno.EINVAL
	}
	m.mu.Lock()
	f, ok := m.pmm.Alloc()
	m.mu.Unlock()
	if !ok {
		return nil, errno.ENOMEM
	}
	data := m.pmm.Dmap(f)
	for i := range data {
		data[i] = 0
	}
	if err := m.MapIn(root, virt, f, flags); err != 0 {
		m.pmm.Free(f)
		return nil, err
	}
	return data, 0
}

// CopyIn copies len(dst) bytes from the user address ptr into dst,
// checking the whole range is user-accessible first and bounding the
// per-page walk the way bounds.B_VM_T_USER2K_INNER gates Biscuit's Uvm
// copyin loop.
func (m *Manager) CopyIn(root Root, ptr uint64, dst []byte) errno.Err_t {
	ln := len(dst)
	if !m.IsUserRange(root, ptr, ln) {
		return errno.EFAULT
	}
	off := 0
	for off < ln {
		va := ptr + uint64(off)
		if !res.AddNoBlock(bounds.B_VM_T_USER2K_INNER) {
			return errno.ENOHEAP
		}
		frame, ok := m.Translate(root, va&^(pmm.PGSIZE-1))
		res.Release(bounds.B_VM_T_USER2K_INNER)
		if !ok {
			return errno.EFAULT
		}
		pageOff := int(va & (pmm.PGSIZE - 1))
		n := copy(dst[off:], m.pmm.Dmap(frame)[pageOff:])
		off += n
	}
	return 0
}

// CopyOut is CopyIn's mirror direction, gated by B_VM_T_K2USER_INNER.
func (m *Manager) CopyOut(root Root, ptr uint64, src []byte) errno.Err_t {
	ln := len(src)
	if !m.IsUserRange(root, ptr, ln) {
		return errno.EFAULT
	}
	off := 0
	for off < ln {
		va := ptr + uint64(off)
		if !res.AddNoBlock(bounds.B_VM_T_K2USER_INNER) {
			return errno.ENOHEAP
		}
		frame, ok := m.Translate(root, va&^(pmm.PGSIZE-1))
		res.Release(bounds.B_VM_T_K2USER_INNER)
		if !ok {
			return errno.EFAULT
		}
		pageOff := int(va & (pmm.PGSIZE - 1))
		n := copy(m.pmm.Dmap(frame)[pageOff:], src[off:])
		off += n
	}
	return 0
}

// CopyInStr copies a NUL-terminated user string of at most max bytes, the
// shape every path argument (open/mkdir/unlink/execve/...) arrives in.
func (m *Manager) CopyInStr(root Root, ptr uint64, max int) (string, errno.Err_t) {
	buf := make([]byte, max)
	got := 0
	for got < max {
		chunk := pmm.PGSIZE - int((ptr+uint64(got))&(pmm.PGSIZE-1))
		if chunk > max-got {
			chunk = max - got
		}
		if err := m.CopyIn(root, ptr+uint64(got), buf[got:got+chunk]); err != 0 {
			return "", err
		}
		for i := 0; i < chunk; i++ {
			if buf[got+i] == 0 {
				return string(buf[:got+i]), 0
			}
		}
		got += chunk
	}
	return "", errno.ENAMETOOLONG
}

// DestroyAddressSpace frees the root frame itself after DestroyUserMappings
// has emptied the user half; the kernel half is never touched since it is
// shared by reference (spec §3: "the kernel half is shared by reference
// across all address spaces and never destroyed").
func (m *Manager) DestroyAddressSpace(root Root) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.spaces[root]
	if !ok {
		return
	}
	m.pmm.Free(rf)
	delete(m.spaces, root)
}
