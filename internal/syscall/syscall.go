// Package syscall is the kernel's syscall dispatch layer: a 512-entry
// table keyed by the Linux x86_64 ABI's numbering, register-style
// argument reading off a proc.Trapframe, and the is_user_range gate every
// pointer argument passes through before any copy touches it.
//
// Grounded on Biscuit's syscall dispatch shape referenced throughout
// main.go (the sys_* naming, the trapframe-driven argument convention)
// and on the teacher's own chentry tool for how this kernel treats ELF
// images (internal/elf). Special-cased behaviors spec §4.9 calls out —
// brk/mmap(MAP_ANONYMOUS) break bumping, arch_prctl's thread-local base —
// are implemented directly against internal/mem/vmm's page-mapping
// primitives, since Biscuit's own versions alias raw pointers this hosted
// port has no equivalent of.
package syscall

import (
	"encoding/binary"

	"kernos/internal/elf"
	"kernos/internal/errno"
	"kernos/internal/fs/vfs"
	"kernos/internal/mem/pmm"
	"kernos/internal/mem/vmm"
	"kernos/internal/proc"
	"kernos/internal/ustr"
	"kernos/internal/util"
)

// Linux-compatible x86_64 syscall numbers, named and valued exactly as
// the real ABI so a user binary built against the normal numbering works
// against this dispatcher unmodified, per spec §4.9.
const (
	SYS_READ       = 0
	SYS_WRITE      = 1
	SYS_OPEN       = 2
	SYS_CLOSE      = 3
	SYS_STAT       = 4
	SYS_FSTAT      = 5
	SYS_LSEEK      = 8
	SYS_MMAP       = 9
	SYS_BRK        = 12
	SYS_PIPE       = 22
	SYS_DUP        = 32
	SYS_DUP2       = 33
	SYS_GETPID     = 39
	SYS_FORK       = 57
	SYS_EXECVE     = 59
	SYS_EXIT       = 60
	SYS_WAIT4      = 61
	SYS_KILL       = 62
	SYS_RENAME     = 82
	SYS_MKDIR      = 83
	SYS_RMDIR      = 84
	SYS_UNLINK     = 87
	SYS_ARCH_PRCTL = 158
	SYS_GETDENTS64 = 217
	SYS_EXIT_GROUP = 231

	sysTableSize = 512
)

// mmap flags this port recognizes; anything file-backed is out of scope.
const MAP_ANONYMOUS = 0x20

// arch_prctl codes, matching Linux's asm/prctl.h subset.
const (
	ARCH_SET_FS = 0x1002
	ARCH_GET_FS = 0x1003
)

const maxPath = 4096

// mmapBase is the bump allocator's starting hint when a caller passes
// addr=0, well clear of the brk-growth region.
const mmapBase = vmm.USERMIN + 0x1000_0000

// Kernel bundles the subsystems a syscall handler needs: the shared VFS
// (mount table + fd table), the address-space manager, and the process
// table/scheduler.
type Kernel struct {
	VFS   *vfs.VFS
	VMM   *vmm.Manager
	Procs *proc.Table
}

// New returns a Kernel wired to the given subsystems.
func New(v *vfs.VFS, m *vmm.Manager, pt *proc.Table) *Kernel {
	return &Kernel{VFS: v, VMM: m, Procs: pt}
}

type handler func(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64

var table [sysTableSize]handler

func init() {
	table[SYS_READ] = sysRead
	table[SYS_WRITE] = sysWrite
	table[SYS_OPEN] = sysOpen
	table[SYS_CLOSE] = sysClose
	table[SYS_STAT] = sysStat
	table[SYS_FSTAT] = sysFstat
	table[SYS_LSEEK] = sysLseek
	table[SYS_MMAP] = sysMmap
	table[SYS_BRK] = sysBrk
	table[SYS_PIPE] = sysPipe
	table[SYS_DUP] = sysDup
	table[SYS_DUP2] = sysDup2
	table[SYS_GETPID] = sysGetpid
	table[SYS_FORK] = sysFork
	table[SYS_EXECVE] = sysExecve
	table[SYS_EXIT] = sysExit
	table[SYS_EXIT_GROUP] = sysExit
	table[SYS_WAIT4] = sysWait4
	table[SYS_KILL] = sysKill
	table[SYS_RENAME] = sysRename
	table[SYS_MKDIR] = sysMkdir
	table[SYS_RMDIR] = sysRmdir
	table[SYS_UNLINK] = sysUnlink
	table[SYS_ARCH_PRCTL] = sysArchPrctl
	table[SYS_GETDENTS64] = sysGetdents64
}

// Dispatch reads tf's syscall number, runs the matching handler (-ENOSYS
// for any unimplemented or out-of-range number, exactly spec §4.9's hole
// behavior), and writes the result back into tf the way a real syscall
// return path restores rax.
//
// Pipe descriptors are not special-cased ahead of this dispatch the way
// Biscuit probes a dedicated pipe fd range first: this port's vfs.File
// interface already makes a pipe just another fd-table entry (see
// internal/fs/vfs's polymorphic File split), so every fd-taking handler
// below reaches a pipe through the ordinary vfs.VFS.Read/Write path.
func (k *Kernel) Dispatch(p *proc.Proc, tf *proc.Trapframe) {
	no := tf.SyscallNo()
	if no >= sysTableSize {
		tf.SetReturn(int64(errno.ENOSYS))
		return
	}
	h := table[no]
	if h == nil {
		tf.SetReturn(int64(errno.ENOSYS))
		return
	}
	tf.SetReturn(h(k, p, tf))
}

// CheckResched is the syscall-return checkpoint spec §4.8 places
// cooperative preemption at: if the running process's resched flag is
// set, it is demoted back to Ready and the scheduler's next candidate
// (if any) is promoted to Running and returned.
func (k *Kernel) CheckResched(p *proc.Proc) *proc.Proc {
	if !p.NeedResched() {
		return p
	}
	p.SetNeedResched(false)
	k.Procs.Ready(p)
	next := k.Procs.Schedule(p.Pid)
	if next == nil {
		return p
	}
	k.Procs.Run(next)
	return next
}

func sysRead(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	n := int(tf.Arg(2))
	if n < 0 {
		return int64(errno.EINVAL)
	}
	buf := make([]byte, n)
	got, err := k.VFS.Read(int(tf.Arg(0)), buf)
	if err != 0 {
		return int64(err)
	}
	if err := k.VMM.CopyOut(p.AS, tf.Arg(1), buf[:got]); err != 0 {
		return int64(err)
	}
	return int64(got)
}

func sysWrite(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	n := int(tf.Arg(2))
	if n < 0 {
		return int64(errno.EINVAL)
	}
	buf := make([]byte, n)
	if err := k.VMM.CopyIn(p.AS, tf.Arg(1), buf); err != 0 {
		return int64(err)
	}
	wrote, err := k.VFS.Write(int(tf.Arg(0)), buf)
	if err != 0 {
		return int64(err)
	}
	return int64(wrote)
}

func sysOpen(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	fd, err := k.VFS.Open(p.Cwd, ustr.Ustr(path), int(tf.Arg(1)), int(tf.Arg(2)))
	if err != 0 {
		return int64(err)
	}
	return int64(fd)
}

func sysClose(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	return int64(k.VFS.Close(int(tf.Arg(0))))
}

func sysLseek(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	off, err := k.VFS.Seek(int(tf.Arg(0)), int64(tf.Arg(1)), int(tf.Arg(2)))
	if err != 0 {
		return int64(err)
	}
	return off
}

// statBytes packs the fields spec §4.6's vfs.Stat carries into a simple
// fixed wire record; this is not bit-for-bit Linux's struct stat, just
// the subset of fields this kernel actually tracks.
func statBytes(st vfs.Stat) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b[0:], st.Dev)
	binary.LittleEndian.PutUint64(b[8:], st.Ino)
	binary.LittleEndian.PutUint32(b[16:], st.Mode)
	binary.LittleEndian.PutUint64(b[20:], uint64(st.Size))
	if st.IsDir {
		b[28] = 1
	}
	return b
}

func sysFstat(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	st, err := k.VFS.Fstat(int(tf.Arg(0)))
	if err != 0 {
		return int64(err)
	}
	if err := k.VMM.CopyOut(p.AS, tf.Arg(1), statBytes(st)); err != 0 {
		return int64(err)
	}
	return 0
}

func sysStat(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	st, err := k.VFS.Stat(p.Cwd, ustr.Ustr(path))
	if err != 0 {
		return int64(err)
	}
	if err := k.VMM.CopyOut(p.AS, tf.Arg(1), statBytes(st)); err != 0 {
		return int64(err)
	}
	return 0
}

func sysMkdir(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	return int64(k.VFS.Mkdir(p.Cwd, ustr.Ustr(path), int(tf.Arg(1))))
}

func sysRmdir(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	return int64(k.VFS.Rmdir(p.Cwd, ustr.Ustr(path)))
}

func sysUnlink(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	return int64(k.VFS.Unlink(p.Cwd, ustr.Ustr(path)))
}

func sysRename(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	oldp, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	newp, err := k.VMM.CopyInStr(p.AS, tf.Arg(1), maxPath)
	if err != 0 {
		return int64(err)
	}
	return int64(k.VFS.Rename(p.Cwd, ustr.Ustr(oldp), ustr.Ustr(newp)))
}

func sysGetdents64(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	max := int(tf.Arg(2))
	ents, err := k.VFS.Getdents(int(tf.Arg(0)))
	if err != 0 {
		return int64(err)
	}
	buf := make([]byte, 0, max)
	for _, e := range ents {
		recLen := util.Roundup(19+len(e.Name)+1, 8)
		if len(buf)+recLen > max {
			break
		}
		rec := make([]byte, recLen)
		binary.LittleEndian.PutUint64(rec[0:], e.Ino)
		binary.LittleEndian.PutUint16(rec[16:], uint16(recLen))
		if e.IsDir {
			rec[18] = 4 // DT_DIR
		} else {
			rec[18] = 8 // DT_REG
		}
		copy(rec[19:], e.Name)
		buf = append(buf, rec...)
	}
	if err := k.VMM.CopyOut(p.AS, tf.Arg(1), buf); err != 0 {
		return int64(err)
	}
	return int64(len(buf))
}

func sysDup(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	nfd, err := k.VFS.Dup(int(tf.Arg(0)))
	if err != 0 {
		return int64(err)
	}
	return int64(nfd)
}

func sysDup2(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	nfd, err := k.VFS.Dup2(int(tf.Arg(0)), int(tf.Arg(1)))
	if err != 0 {
		return int64(err)
	}
	return int64(nfd)
}

func sysPipe(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	rfd, wfd, err := k.VFS.Pipe()
	if err != 0 {
		return int64(err)
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], uint32(rfd))
	binary.LittleEndian.PutUint32(b[4:], uint32(wfd))
	if err := k.VMM.CopyOut(p.AS, tf.Arg(0), b); err != 0 {
		return int64(err)
	}
	return 0
}

func sysGetpid(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	return int64(p.Pid)
}

func sysFork(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	child, err := k.Procs.Fork(p)
	if err != 0 {
		return int64(err)
	}
	k.Procs.Ready(child)
	return int64(child.Pid)
}

func sysExit(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	k.Procs.Exit(p, int(tf.Arg(0)))
	return 0
}

func sysWait4(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	const wnohang = 1
	pid := proc.Pid(int32(tf.Arg(0)))
	if pid == 0 {
		pid = proc.NoPid
	}
	options := int(tf.Arg(2))
	rpid, status, err := k.Procs.Wait(p, pid, options&wnohang != 0)
	if err != 0 {
		return int64(err)
	}
	if statusPtr := tf.Arg(1); statusPtr != 0 {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(status)<<8)
		k.VMM.CopyOut(p.AS, statusPtr, b)
	}
	return int64(rpid)
}

func sysKill(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	target, ok := k.Procs.Get(proc.Pid(int32(tf.Arg(0))))
	if !ok {
		return int64(errno.ESRCH)
	}
	k.Procs.Exit(target, int(tf.Arg(1)))
	return 0
}

func sysArchPrctl(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	switch tf.Arg(0) {
	case ARCH_SET_FS:
		p.FSBase = tf.Arg(1)
		return 0
	case ARCH_GET_FS:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, p.FSBase)
		if err := k.VMM.CopyOut(p.AS, tf.Arg(1), b); err != 0 {
			return int64(err)
		}
		return 0
	default:
		return int64(errno.EINVAL)
	}
}

const brkPageFlags = vmm.PTE_P | vmm.PTE_U | vmm.PTE_W

// sysBrk implements the break-bumping behavior spec §4.9 names: brk(0)
// reports the current break, any other argument grows (never shrinks,
// matching Biscuit's own brk which never unmaps) the break up to the
// requested address, mapping fresh zeroed pages as needed.
func sysBrk(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	want := tf.Arg(0)
	if want == 0 || want <= p.Brk {
		return int64(p.Brk)
	}
	cur := util.Roundup(p.Brk, uint64(pmm.PGSIZE))
	if cur == 0 {
		// Page 0 is reserved: a brand-new process's heap starts at the
		// second page so a null pointer dereference still faults instead
		// of landing on mapped, zeroed heap memory.
		cur = uint64(pmm.PGSIZE)
	}
	target := util.Roundup(want, uint64(pmm.PGSIZE))
	for va := cur; va < target; va += pmm.PGSIZE {
		if _, err := k.VMM.MapAnonPage(p.AS, va, brkPageFlags); err != 0 {
			return int64(err)
		}
	}
	p.Brk = want
	return int64(p.Brk)
}

// sysMmap supports only the anonymous, non-fixed case spec §4.9 calls
// for; a file-backed mapping returns -ENOSYS rather than pretending to
// support page cache-backed mmap this port doesn't have.
func sysMmap(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	length := tf.Arg(1)
	flags := tf.Arg(3)
	if flags&MAP_ANONYMOUS == 0 {
		return int64(errno.ENOSYS)
	}
	if length == 0 {
		return int64(errno.EINVAL)
	}
	start := p.MmapNext
	if start == 0 {
		start = mmapBase
	}
	end := util.Roundup(start+length, uint64(pmm.PGSIZE))
	for va := start; va < end; va += pmm.PGSIZE {
		if _, err := k.VMM.MapAnonPage(p.AS, va, brkPageFlags); err != 0 {
			return int64(err)
		}
	}
	p.MmapNext = end
	return int64(start)
}

// loadImage maps every PT_LOAD segment of img into root, copying file
// bytes and zero-filling the bss tail (memsz - filesz) a page at a time.
func loadImage(k *Kernel, root vmm.Root, img *elf.Image) errno.Err_t {
	for _, seg := range img.Segments {
		flags := vmm.PTE_P | vmm.PTE_U
		if seg.Writable {
			flags |= vmm.PTE_W
		}
		start := util.Rounddown(seg.Vaddr, uint64(pmm.PGSIZE))
		end := util.Roundup(seg.Vaddr+seg.Memsz, uint64(pmm.PGSIZE))
		fileEnd := seg.Vaddr + seg.Filesz
		for va := start; va < end; va += pmm.PGSIZE {
			page, err := k.VMM.MapAnonPage(root, va, flags)
			if err != 0 {
				return err
			}
			pageEnd := va + pmm.PGSIZE
			if pageEnd <= seg.Vaddr || va >= fileEnd {
				continue
			}
			loStart := util.Max(va, seg.Vaddr)
			loEnd := util.Min(pageEnd, fileEnd)
			copy(page[loStart-va:], seg.Data[loStart-seg.Vaddr:loEnd-seg.Vaddr])
		}
	}
	return 0
}

// sysExecve implements this kernel's spawn semantics: it reads and parses
// the target binary, maps a freshly loaded image into a brand-new
// process, and returns that process's pid to the caller (SPEC_FULL.md
// §9's decision: exec never replaces the caller's own image).
func sysExecve(k *Kernel, p *proc.Proc, tf *proc.Trapframe) int64 {
	path, err := k.VMM.CopyInStr(p.AS, tf.Arg(0), maxPath)
	if err != 0 {
		return int64(err)
	}
	fd, err := k.VFS.Open(p.Cwd, ustr.Ustr(path), vfs.O_RDONLY, 0)
	if err != 0 {
		return int64(err)
	}
	defer k.VFS.Close(fd)

	st, err := k.VFS.Fstat(fd)
	if err != 0 {
		return int64(err)
	}
	raw := make([]byte, st.Size)
	if _, err := k.VFS.Read(fd, raw); err != 0 {
		return int64(err)
	}
	img, perr := elf.Parse(raw)
	if perr != 0 {
		return int64(perr)
	}

	child, err := k.Procs.Exec(p, func(root vmm.Root) (uint64, errno.Err_t) {
		if lerr := loadImage(k, root, img); lerr != 0 {
			return 0, lerr
		}
		return img.Entry, 0
	})
	if err != 0 {
		return int64(err)
	}

	var brk uint64
	for _, seg := range img.Segments {
		if end := util.Roundup(seg.Vaddr+seg.Memsz, uint64(pmm.PGSIZE)); end > brk {
			brk = end
		}
	}
	child.Brk = brk
	k.Procs.Ready(child)
	return int64(child.Pid)
}
