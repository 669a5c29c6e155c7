package ext2

import "encoding/binary"

const groupDescSize = 32

// GroupDesc wraps one 32-byte on-disk block group descriptor.
type GroupDesc struct {
	Data []byte
}

func (g *GroupDesc) BlockBitmap() uint32     { return binary.LittleEndian.Uint32(g.Data[0:]) }
func (g *GroupDesc) SetBlockBitmap(v uint32) { binary.LittleEndian.PutUint32(g.Data[0:], v) }

func (g *GroupDesc) InodeBitmap() uint32     { return binary.LittleEndian.Uint32(g.Data[4:]) }
func (g *GroupDesc) SetInodeBitmap(v uint32) { binary.LittleEndian.PutUint32(g.Data[4:], v) }

func (g *GroupDesc) InodeTable() uint32     { return binary.LittleEndian.Uint32(g.Data[8:]) }
func (g *GroupDesc) SetInodeTable(v uint32) { binary.LittleEndian.PutUint32(g.Data[8:], v) }

func (g *GroupDesc) FreeBlocksCount() uint16     { return binary.LittleEndian.Uint16(g.Data[12:]) }
func (g *GroupDesc) SetFreeBlocksCount(v uint16) { binary.LittleEndian.PutUint16(g.Data[12:], v) }

func (g *GroupDesc) FreeInodesCount() uint16     { return binary.LittleEndian.Uint16(g.Data[14:]) }
func (g *GroupDesc) SetFreeInodesCount(v uint16) { binary.LittleEndian.PutUint16(g.Data[14:], v) }

func (g *GroupDesc) UsedDirsCount() uint16     { return binary.LittleEndian.Uint16(g.Data[16:]) }
func (g *GroupDesc) SetUsedDirsCount(v uint16) { binary.LittleEndian.PutUint16(g.Data[16:], v) }
