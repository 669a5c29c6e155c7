package ext2

import "kernos/internal/errno"

// ptrsPerBlock is derived from the filesystem's block size; a 1 KiB
// block holds 256 32-bit block pointers, 4 KiB holds 1024.
func ptrsPerBlock(blockSize uint32) uint32 { return blockSize / 4 }

// blockSource is whatever the bmap walk needs from the owning
// filesystem: read an existing block, or allocate a fresh zeroed one.
type blockSource interface {
	readBlock(n uint32) []byte
	writeBlock(n uint32, data []byte)
	allocBlock() (uint32, errno.Err_t)
	blockSize() uint32
}

// bmap translates a file-relative logical block number to a physical
// block number, walking the 12 direct slots and then the
// single/double/triple indirect trees exactly as ext2's on-disk layout
// requires. When alloc is true, missing direct/indirect blocks are
// allocated and zeroed as the walk proceeds (and the inode is mutated in
// place); when false, an unallocated logical block yields physBlock==0
// (the sparse-hole convention) with no error.
func bmap(bs blockSource, in *Inode, logical uint32, alloc bool) (uint32, errno.Err_t) {
	if logical < nDirect {
		return resolveSlot(bs, in, int(logical), alloc)
	}
	logical -= nDirect

	ppb := ptrsPerBlock(bs.blockSize())

	if logical < ppb {
		return walkIndirect(bs, in, idxSingle, logical, ppb, alloc)
	}
	logical -= ppb

	if logical < ppb*ppb {
		return walkDoubleIndirect(bs, in, logical, ppb, alloc)
	}
	logical -= ppb * ppb

	if logical < ppb*ppb*ppb {
		return walkTripleIndirect(bs, in, logical, ppb, alloc)
	}
	return 0, errno.EINVAL
}

// resolveSlot handles one direct i_block[idx] entry, allocating it on
// demand if asked.
func resolveSlot(bs blockSource, in *Inode, idx int, alloc bool) (uint32, errno.Err_t) {
	b := in.Block(idx)
	if b != 0 {
		return b, 0
	}
	if !alloc {
		return 0, 0
	}
	nb, err := bs.allocBlock()
	if err != 0 {
		return 0, err
	}
	in.SetBlock(idx, nb)
	return nb, 0
}

// walkIndirect handles a single level of indirection: i_block[idxSingle]
// points at a block of ppb direct pointers.
func walkIndirect(bs blockSource, in *Inode, slot int, logical, ppb uint32, alloc bool) (uint32, errno.Err_t) {
	indBlock, err := resolveSlot(bs, in, slot, alloc)
	if err != 0 || indBlock == 0 {
		return 0, err
	}
	return readOrAllocPointer(bs, indBlock, logical, alloc)
}

// walkDoubleIndirect handles i_block[idxDouble]: a block of pointers to
// single-indirect blocks.
func walkDoubleIndirect(bs blockSource, in *Inode, logical, ppb uint32, alloc bool) (uint32, errno.Err_t) {
	dind, err := resolveSlot(bs, in, idxDouble, alloc)
	if err != 0 || dind == 0 {
		return 0, err
	}
	outer := logical / ppb
	inner := logical % ppb
	singleBlock, err := readOrAllocPointer(bs, dind, outer, alloc)
	if err != 0 || singleBlock == 0 {
		return 0, err
	}
	return readOrAllocPointer(bs, singleBlock, inner, alloc)
}

// walkTripleIndirect handles i_block[idxTriple]: a block of pointers to
// double-indirect blocks.
func walkTripleIndirect(bs blockSource, in *Inode, logical, ppb uint32, alloc bool) (uint32, errno.Err_t) {
	tind, err := resolveSlot(bs, in, idxTriple, alloc)
	if err != 0 || tind == 0 {
		return 0, err
	}
	outer := logical / (ppb * ppb)
	rem := logical % (ppb * ppb)
	mid := rem / ppb
	inner := rem % ppb

	dind, err := readOrAllocPointer(bs, tind, outer, alloc)
	if err != 0 || dind == 0 {
		return 0, err
	}
	singleBlock, err := readOrAllocPointer(bs, dind, mid, alloc)
	if err != 0 || singleBlock == 0 {
		return 0, err
	}
	return readOrAllocPointer(bs, singleBlock, inner, alloc)
}

// readOrAllocPointer reads the idx'th 32-bit block pointer out of
// pointerBlock, allocating and writing a fresh block (and zeroing the
// new pointer's own backing block) when asked and the slot is empty.
func readOrAllocPointer(bs blockSource, pointerBlock, idx uint32, alloc bool) (uint32, errno.Err_t) {
	data := bs.readBlock(pointerBlock)
	off := idx * 4
	v := leUint32(data[off:])
	if v != 0 {
		return v, 0
	}
	if !alloc {
		return 0, 0
	}
	nb, err := bs.allocBlock()
	if err != 0 {
		return 0, err
	}
	putLeUint32(data[off:], nb)
	bs.writeBlock(pointerBlock, data)
	return nb, 0
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
