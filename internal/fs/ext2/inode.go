package ext2

import "encoding/binary"

// ext2 file type / mode bits the kernel cares about.
const (
	sIFMT   = 0xF000
	sIFDIR  = 0x4000
	sIFREG  = 0x8000
	sIFIFO  = 0x1000
	nDirect = 12
)

// Inode wraps one on-disk inode record, whose size varies with
// Superblock.InodeSize (128 bytes for rev 0, commonly 256 for rev 1; only
// the first 128 bytes are standardized and used here).
type Inode struct {
	Data []byte
}

func (in *Inode) u16(off int) uint16       { return binary.LittleEndian.Uint16(in.Data[off:]) }
func (in *Inode) setU16(off int, v uint16) { binary.LittleEndian.PutUint16(in.Data[off:], v) }
func (in *Inode) u32(off int) uint32       { return binary.LittleEndian.Uint32(in.Data[off:]) }
func (in *Inode) setU32(off int, v uint32) { binary.LittleEndian.PutUint32(in.Data[off:], v) }

func (in *Inode) Mode() uint16     { return in.u16(0) }
func (in *Inode) SetMode(v uint16) { in.setU16(0, v) }

func (in *Inode) IsDir() bool { return in.Mode()&sIFMT == sIFDIR }
func (in *Inode) IsReg() bool { return in.Mode()&sIFMT == sIFREG }

func (in *Inode) Size() uint32     { return in.u32(4) }
func (in *Inode) SetSize(v uint32) { in.setU32(4, v) }

func (in *Inode) LinksCount() uint16     { return in.u16(26) }
func (in *Inode) SetLinksCount(v uint16) { in.setU16(26, v) }

func (in *Inode) BlocksSectors() uint32     { return in.u32(28) }
func (in *Inode) SetBlocksSectors(v uint32) { in.setU32(28, v) }

// Block returns the i'th entry of the 15-slot i_block array (12 direct,
// then single/double/triple indirect).
func (in *Inode) Block(i int) uint32     { return in.u32(40 + i*4) }
func (in *Inode) SetBlock(i int, v uint32) { in.setU32(40+i*4, v) }

const (
	idxSingle = 12
	idxDouble = 13
	idxTriple = 14
)
