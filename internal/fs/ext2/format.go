package ext2

import (
	"kernos/internal/block"
	"kernos/internal/errno"
)

// FormatOptions controls the handful of knobs Format exposes; anything
// else (block size, inode size) is fixed to the common 1 KiB/128-byte
// defaults spec §4.8 describes for the minimal on-disk layout.
type FormatOptions struct {
	TotalBlocks    uint32
	InodesPerGroup uint32
}

const defaultBlocksPerGroup = 8192

// Format writes a minimal single-group-capable ext2 filesystem image to
// disk: superblock, group descriptor table, block/inode bitmaps, inode
// table, and a root directory inode with "." and "..". It is the
// in-memory equivalent of mke2fs, used both by tests and by the boot path,
// which formats its disk this way on every start before mounting it.
func Format(disk *block.Disk, opts FormatOptions) errno.Err_t {
	const blockSize = 1024
	totalBlocks := opts.TotalBlocks
	if totalBlocks == 0 {
		totalBlocks = 4096
	}
	ipg := opts.InodesPerGroup
	if ipg == 0 {
		ipg = 1024
	}
	bpg := uint32(defaultBlocksPerGroup)
	if bpg > totalBlocks {
		bpg = totalBlocks
	}
	groups := (totalBlocks + bpg - 1) / bpg

	sbData := make([]byte, 1024)
	sb := &Superblock{Data: sbData}
	sb.SetInodesCount(ipg * groups)
	sb.SetBlocksCount(totalBlocks)
	sb.SetFirstDataBlock(1)
	sb.SetLogBlockSize(0)
	sb.SetBlocksPerGroup(bpg)
	sb.SetInodesPerGroup(ipg)
	sb.SetMagic(ext2Magic)
	sb.SetRevLevel(0)

	gdtBlocks := (groups*groupDescSize + blockSize - 1) / blockSize
	itBlocksPerGroup := (ipg*defaultInodeSize + blockSize - 1) / blockSize

	// Layout per group: [superblock+gdt only in group 0] block bitmap (1
	// block), inode bitmap (1 block), inode table (itBlocksPerGroup
	// blocks), then data blocks.
	gdt := make([]byte, gdtBlocks*blockSize)
	type groupLayout struct {
		blockBitmap, inodeBitmap, inodeTable, firstDataBlock uint32
		blocksInGroup, inodesInGroup                         uint32
	}
	layouts := make([]groupLayout, groups)

	// Group g's bitmaps/inode-table occupy the blocks right after its own
	// FirstDataBlock+g*BlocksPerGroup boundary; group 0 additionally
	// carries the boot block, superblock, and group descriptor table
	// ahead of its own bitmaps, since this minimal layout keeps no backup
	// copies in later groups.
	const gdtStartBlock = 2 // block 0 is the boot block, block 1 holds the superblock
	for g := uint32(0); g < groups; g++ {
		blocksInGroup := bpg
		if g == groups-1 {
			rem := totalBlocks - bpg*(groups-1)
			if rem > 0 {
				blocksInGroup = rem
			}
		}
		groupBase := uint32(1) + g*bpg
		cursor := groupBase
		if g == 0 {
			cursor = gdtStartBlock + gdtBlocks
		}
		l := groupLayout{
			blockBitmap:   cursor,
			inodeBitmap:   cursor + 1,
			inodeTable:    cursor + 2,
			blocksInGroup: blocksInGroup,
			inodesInGroup: ipg,
		}
		l.firstDataBlock = l.inodeTable + itBlocksPerGroup
		layouts[g] = l
	}

	freeBlocksTotal := uint32(0)
	freeInodesTotal := uint32(0)
	for g, l := range layouts {
		gd := &GroupDesc{Data: gdt[g*groupDescSize : (g+1)*groupDescSize]}
		gd.SetBlockBitmap(l.blockBitmap)
		gd.SetInodeBitmap(l.inodeBitmap)
		gd.SetInodeTable(l.inodeTable)

		groupBase := uint32(1) + uint32(g)*bpg
		metaBlocks := l.firstDataBlock - groupBase
		freeData := l.blocksInGroup - metaBlocks
		gd.SetFreeBlocksCount(uint16(freeData))

		freeInodesInGroup := l.inodesInGroup
		if g == 0 {
			freeInodesInGroup -= rootIno
		}
		gd.SetFreeInodesCount(uint16(freeInodesInGroup))
		freeBlocksTotal += freeData
		freeInodesTotal += freeInodesInGroup
	}

	writeRaw(disk, 0, make([]byte, 1024))
	writeRaw(disk, 1024, sbData)
	writeBlockRaw(disk, gdtStartBlock, gdt, blockSize)

	for g, l := range layouts {
		bbm := make([]byte, blockSize)
		bm := Bitmap{Data: bbm}
		// Bit i of a group's block bitmap covers absolute physical block
		// FirstDataBlock+g*BlocksPerGroup+i; every block before this
		// group's firstDataBlock is metadata (superblock+gdt in group 0,
		// then this group's own bitmaps/inode table) and must be marked
		// used up front.
		groupBase := uint32(1) + uint32(g)*bpg
		metaEnd := l.firstDataBlock - groupBase
		for i := uint32(0); i < metaEnd; i++ {
			bm.Set(i)
		}
		for i := l.blocksInGroup; i < bpg; i++ {
			bm.Set(i)
		}
		writeBlockRaw(disk, l.blockBitmap, bbm, blockSize)

		ibm := make([]byte, blockSize)
		ibmw := Bitmap{Data: ibm}
		if g == 0 {
			// Inodes 1 (reserved) and 2 (root) are spoken for before any
			// allocation happens.
			for i := uint32(0); i < rootIno; i++ {
				ibmw.Set(i)
			}
		}
		for i := l.inodesInGroup; i < ipg; i++ {
			ibmw.Set(i)
		}
		writeBlockRaw(disk, l.inodeBitmap, ibm, blockSize)

		itable := make([]byte, itBlocksPerGroup*blockSize)
		writeBlockRaw(disk, l.inodeTable, itable, blockSize)
	}

	sb.SetFreeBlocksCount(freeBlocksTotal)
	sb.SetFreeInodesCount(freeInodesTotal)
	writeRaw(disk, 1024, sbData)

	fs := &FS{cache: newBlockCache(disk, blockSize), sb: sb}

	rootBlock, err := fs.allocBlock()
	if err != 0 {
		return err
	}
	data := fs.readBlock(rootBlock)
	writeDirent(data, 0, Dirent{Ino: rootIno, RecLen: blockSize / 2, FileType: ftDir, Name: "."})
	writeDirent(data, blockSize/2, Dirent{Ino: rootIno, RecLen: blockSize / 2, FileType: ftDir, Name: ".."})
	fs.writeBlock(rootBlock, data)

	rootInode := fs.inode(rootIno)
	rootInode.SetMode(sIFDIR)
	rootInode.SetLinksCount(2)
	rootInode.SetSize(blockSize)
	rootInode.SetBlock(0, rootBlock)
	fs.saveInode(rootIno, rootInode)

	writeRaw(disk, 1024, sb.Data)

	return fs.Flush()
}

func writeRaw(disk *block.Disk, byteOff int, data []byte) {
	lba := uint64(byteOff) / block.SectorSize
	nsec := (len(data) + block.SectorSize - 1) / block.SectorSize
	padded := make([]byte, nsec*block.SectorSize)
	copy(padded, data)
	for i := 0; i < nsec; i++ {
		disk.Write(lba+uint64(i), padded[i*block.SectorSize:(i+1)*block.SectorSize])
	}
}

func writeBlockRaw(disk *block.Disk, blockNum uint32, data []byte, blockSize uint32) {
	writeRaw(disk, int(blockNum)*int(blockSize), data)
}
