// Package ext2 is the on-disk filesystem backend: an ext2 rev 0/1 reader
// and writer (superblock, group descriptors, inode table, block/inode
// bitmaps, 12-direct plus single/double/triple indirect block trees, and
// variable-length directory entries) driven through internal/block.
//
// The field-accessor style — typed getter/setter pairs over a raw block
// buffer — is grounded on Biscuit's fs.Superblock_t (biscuit/src/fs/super.go);
// Biscuit's own on-disk format isn't ext2, so the field table there is
// replaced here with ext2's real byte offsets, read via encoding/binary
// instead of Biscuit's word-indexed fieldr/fieldw helpers.
package ext2

import "encoding/binary"

const (
	superblockOffset = 1024
	superblockSize    = 1024
	ext2Magic        uint16 = 0xEF53
	rootIno          uint32 = 2
	defaultInodeSize        = 128
)

// Superblock wraps the raw 1024-byte on-disk superblock.
type Superblock struct {
	Data []byte
}

func (sb *Superblock) u32(off int) uint32   { return binary.LittleEndian.Uint32(sb.Data[off:]) }
func (sb *Superblock) setU32(off int, v uint32) { binary.LittleEndian.PutUint32(sb.Data[off:], v) }
func (sb *Superblock) u16(off int) uint16   { return binary.LittleEndian.Uint16(sb.Data[off:]) }
func (sb *Superblock) setU16(off int, v uint16) { binary.LittleEndian.PutUint16(sb.Data[off:], v) }

func (sb *Superblock) InodesCount() uint32     { return sb.u32(0) }
func (sb *Superblock) SetInodesCount(v uint32) { sb.setU32(0, v) }

func (sb *Superblock) BlocksCount() uint32     { return sb.u32(4) }
func (sb *Superblock) SetBlocksCount(v uint32) { sb.setU32(4, v) }

func (sb *Superblock) FreeBlocksCount() uint32     { return sb.u32(12) }
func (sb *Superblock) SetFreeBlocksCount(v uint32) { sb.setU32(12, v) }

func (sb *Superblock) FreeInodesCount() uint32     { return sb.u32(16) }
func (sb *Superblock) SetFreeInodesCount(v uint32) { sb.setU32(16, v) }

func (sb *Superblock) FirstDataBlock() uint32     { return sb.u32(20) }
func (sb *Superblock) SetFirstDataBlock(v uint32) { sb.setU32(20, v) }

func (sb *Superblock) LogBlockSize() uint32     { return sb.u32(24) }
func (sb *Superblock) SetLogBlockSize(v uint32) { sb.setU32(24, v) }

// BlockSize derives the block size in bytes from LogBlockSize (1024 <<
// log), per the ext2 on-disk format.
func (sb *Superblock) BlockSize() uint32 { return 1024 << sb.LogBlockSize() }

func (sb *Superblock) BlocksPerGroup() uint32     { return sb.u32(32) }
func (sb *Superblock) SetBlocksPerGroup(v uint32) { sb.setU32(32, v) }

func (sb *Superblock) InodesPerGroup() uint32     { return sb.u32(40) }
func (sb *Superblock) SetInodesPerGroup(v uint32) { sb.setU32(40, v) }

func (sb *Superblock) Magic() uint16     { return sb.u16(56) }
func (sb *Superblock) SetMagic(v uint16) { sb.setU16(56, v) }

func (sb *Superblock) RevLevel() uint32     { return sb.u32(76) }
func (sb *Superblock) SetRevLevel(v uint32) { sb.setU32(76, v) }

func (sb *Superblock) FirstIno() uint32 {
	if sb.RevLevel() == 0 {
		return 11
	}
	return sb.u32(84)
}
func (sb *Superblock) SetFirstIno(v uint32) { sb.setU32(84, v) }

func (sb *Superblock) InodeSize() uint16 {
	if sb.RevLevel() == 0 {
		return defaultInodeSize
	}
	return sb.u16(88)
}
func (sb *Superblock) SetInodeSize(v uint16) { sb.setU16(88, v) }

// GroupCount derives the number of block groups from the blocks count
// (less the first data block), rounding up, matching mke2fs's own
// derivation.
func (sb *Superblock) GroupCount() uint32 {
	byBlocks := (sb.BlocksCount() - sb.FirstDataBlock() + sb.BlocksPerGroup() - 1) / sb.BlocksPerGroup()
	return byBlocks
}
