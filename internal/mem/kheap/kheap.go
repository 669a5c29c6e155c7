// Package kheap is the kernel's dynamic allocator: a best-fit free-list
// over a byte arena that grows page-by-page from the physical frame
// allocator, grounded on the segment-header-with-neighbor-pointers design
// in Mazarin's kmalloc/kfree (src/mazboot/golang/main/heap.go) but
// reworked into offset-based headers over a plain byte slice instead of
// unsafe pointers, since this port has no raw memory to take the address
// of.
//
// Every block begins with a 32-byte header (magic, total size including
// header, free flag, and int64 offsets to the previous/next block in
// address order) followed by the data area; blocks are always a multiple
// of 8 bytes. Freeing coalesces with both neighbors when they are free,
// same as Mazarin's kfree.
package kheap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"kernos/internal/errno"
	"kernos/internal/mem/pmm"
)

const (
	magic      uint32 = 0xfeedface
	headerSize        = 32
	minBlock          = headerSize
	align             = 8
)

// offsets within a block header
const (
	offMagic = 0
	offSize  = 4
	offNext  = 8
	offPrev  = 16
	offFree  = 24
)

const noBlock int64 = -1

// Heap is a free-list kernel allocator growing on demand from a physical
// frame pool.
type Heap struct {
	mu     sync.Mutex
	pmm    *pmm.Allocator
	arena  []byte
	frames []pmm.Frame
	head   int64 // offset of first block, or noBlock if empty
}

// New returns an empty heap backed by p; its first Alloc call grows it.
func New(p *pmm.Allocator) *Heap {
	return &Heap{pmm: p, head: noBlock}
}

func roundUp(n, to int) int {
	return (n + to - 1) &^ (to - 1)
}

func (h *Heap) blockMagic(off int64) uint32 {
	return binary.LittleEndian.Uint32(h.arena[off+offMagic:])
}

func (h *Heap) blockSize(off int64) uint32 {
	return binary.LittleEndian.Uint32(h.arena[off+offSize:])
}

func (h *Heap) setBlockSize(off int64, v uint32) {
	binary.LittleEndian.PutUint32(h.arena[off+offSize:], v)
}

func (h *Heap) blockNext(off int64) int64 {
	return int64(binary.LittleEndian.Uint64(h.arena[off+offNext:]))
}

func (h *Heap) setBlockNext(off int64, v int64) {
	binary.LittleEndian.PutUint64(h.arena[off+offNext:], uint64(v))
}

func (h *Heap) blockPrev(off int64) int64 {
	return int64(binary.LittleEndian.Uint64(h.arena[off+offPrev:]))
}

func (h *Heap) setBlockPrev(off int64, v int64) {
	binary.LittleEndian.PutUint64(h.arena[off+offPrev:], uint64(v))
}

func (h *Heap) blockFree(off int64) bool {
	return h.arena[off+offFree] != 0
}

func (h *Heap) setBlockFree(off int64, free bool) {
	if free {
		h.arena[off+offFree] = 1
	} else {
		h.arena[off+offFree] = 0
	}
}

func (h *Heap) initBlock(off int64, size uint32, prev, next int64) {
	binary.LittleEndian.PutUint32(h.arena[off+offMagic:], magic)
	h.setBlockSize(off, size)
	h.setBlockPrev(off, prev)
	h.setBlockNext(off, next)
	h.setBlockFree(off, true)
}

// grow extends the arena by enough whole pages to satisfy need bytes of
// additional free space, appending one new free block at the tail.
func (h *Heap) grow(need int) bool {
	npages := roundUp(need+headerSize, pmm.PGSIZE) / pmm.PGSIZE
	first, ok := h.pmm.AllocContiguous(npages)
	if !ok {
		// Fall back to scattered single-frame growth isn't possible since
		// the arena must stay one contiguous slice; report failure.
		return false
	}
	h.frames = append(h.frames, first)
	chunk := h.pmm.DmapRange(first, npages)
	newOff := int64(len(h.arena))
	h.arena = append(h.arena, chunk...)

	// Link the new space in as one free block, coalescing with the
	// previous tail block if it was free.
	if h.head == noBlock {
		h.initBlock(newOff, uint32(len(chunk)), noBlock, noBlock)
		h.head = newOff
		return true
	}
	tail := h.head
	for h.blockNext(tail) != noBlock {
		tail = h.blockNext(tail)
	}
	if h.blockFree(tail) {
		h.setBlockSize(tail, h.blockSize(tail)+uint32(len(chunk)))
		return true
	}
	h.initBlock(newOff, uint32(len(chunk)), tail, noBlock)
	h.setBlockNext(tail, newOff)
	return true
}

// Alloc returns the offset of a zero-initialized data area of at least
// size bytes, growing the heap from the physical allocator if no free
// block fits.
func (h *Heap) Alloc(size int) (int64, errno.Err_t) {
	if size <= 0 {
		return 0, errno.EINVAL
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	want := uint32(roundUp(headerSize+size, align))
	for tries := 0; tries < 2; tries++ {
		if off, ok := h.bestFit(want); ok {
			h.split(off, want)
			h.setBlockFree(off, false)
			data := off + headerSize
			for i := range h.arena[data : data+int64(size)] {
				h.arena[data+int64(i)] = 0
			}
			return data, 0
		}
		if !h.grow(int(want)) {
			return 0, errno.ENOHEAP
		}
	}
	return 0, errno.ENOHEAP
}

// AllocZeroed is Alloc; every block returned by Alloc is already
// zero-filled, kept as a distinct name so callers can document intent.
func (h *Heap) AllocZeroed(size int) (int64, errno.Err_t) {
	return h.Alloc(size)
}

func (h *Heap) bestFit(want uint32) (int64, bool) {
	best := noBlock
	bestSize := uint32(0)
	for off := h.head; off != noBlock; off = h.blockNext(off) {
		if !h.blockFree(off) {
			continue
		}
		sz := h.blockSize(off)
		if sz < want {
			continue
		}
		if best == noBlock || sz < bestSize {
			best, bestSize = off, sz
			if sz == want {
				break
			}
		}
	}
	if best == noBlock {
		return 0, false
	}
	return best, true
}

// split carves want bytes off the front of the free block at off, leaving
// the remainder as a new free block, when the remainder is large enough
// to be useful.
func (h *Heap) split(off int64, want uint32) {
	total := h.blockSize(off)
	remaining := total - want
	if remaining < minBlock {
		return
	}
	newOff := off + int64(want)
	next := h.blockNext(off)
	h.initBlock(newOff, remaining, off, next)
	if next != noBlock {
		h.setBlockPrev(next, newOff)
	}
	h.setBlockNext(off, newOff)
	h.setBlockSize(off, want)
}

// Free releases a block previously returned by Alloc, coalescing with
// free neighbors in address order.
func (h *Heap) Free(ptr int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	off := ptr - headerSize
	if off < 0 || off >= int64(len(h.arena)) || h.blockMagic(off) != magic {
		panic(fmt.Sprintf("kheap: free of invalid pointer %d", ptr))
	}
	if h.blockFree(off) {
		panic(fmt.Sprintf("kheap: double free at %d", ptr))
	}
	h.setBlockFree(off, true)

	if next := h.blockNext(off); next != noBlock && h.blockFree(next) {
		h.setBlockSize(off, h.blockSize(off)+h.blockSize(next))
		nn := h.blockNext(next)
		h.setBlockNext(off, nn)
		if nn != noBlock {
			h.setBlockPrev(nn, off)
		}
	}
	if prev := h.blockPrev(off); prev != noBlock && h.blockFree(prev) {
		h.setBlockSize(prev, h.blockSize(prev)+h.blockSize(off))
		next := h.blockNext(off)
		h.setBlockNext(prev, next)
		if next != noBlock {
			h.setBlockPrev(next, prev)
		}
	}
}

// Realloc resizes the block at ptr to size bytes, copying the overlap and
// freeing the old block; behaves like Alloc if ptr is 0.
func (h *Heap) Realloc(ptr int64, size int) (int64, errno.Err_t) {
	if ptr == 0 {
		return h.Alloc(size)
	}
	h.mu.Lock()
	off := ptr - headerSize
	if off < 0 || off >= int64(len(h.arena)) || h.blockMagic(off) != magic {
		h.mu.Unlock()
		panic(fmt.Sprintf("kheap: realloc of invalid pointer %d", ptr))
	}
	oldData := int(h.blockSize(off)) - headerSize
	h.mu.Unlock()

	n, err := h.Alloc(size)
	if err != 0 {
		return 0, err
	}
	cn := oldData
	if size < cn {
		cn = size
	}
	h.mu.Lock()
	copy(h.arena[n:n+int64(cn)], h.arena[ptr:ptr+int64(cn)])
	h.mu.Unlock()
	h.Free(ptr)
	return n, 0
}

// Bytes returns the live view of a previously allocated block's data area
// for callers that need direct access (e.g. the VFS page cache).
func (h *Heap) Bytes(ptr int64, size int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.arena[ptr : ptr+int64(size)]
}

// TotalBytes reports how many bytes the heap has grown to.
func (h *Heap) TotalBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.arena)
}

// FreeBytes reports the sum of free block sizes (header included).
func (h *Heap) FreeBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n int
	for off := h.head; off != noBlock; off = h.blockNext(off) {
		if h.blockFree(off) {
			n += int(h.blockSize(off))
		}
	}
	return n
}
