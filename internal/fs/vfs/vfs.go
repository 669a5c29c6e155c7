// Package vfs is the virtual filesystem layer: a mount table routing
// paths to per-filesystem-type backends, a global file descriptor table,
// and the path-normalization/open-flag policy every syscall above it
// relies on. Grounded on Biscuit's fd.Fd_t/Cwd_t (biscuit/src/fd/fd.go)
// for the fd/cwd shape and on ufs.Ufs_t (biscuit/src/ufs/ufs.go) for the
// open/mkdir/unlink/stat/rename call surface, generalized from one
// hardwired on-disk filesystem to the mount table spec §4.6 asks for.
package vfs

import (
	"sort"
	"sync"

	"kernos/internal/errno"
	"kernos/internal/ustr"
)

// Open flags, matching the Linux-compatible subset spec §4.9 names.
const (
	O_RDONLY    = 0x0000
	O_WRONLY    = 0x0001
	O_RDWR      = 0x0002
	O_ACCMODE   = 0x0003
	O_CREAT     = 0x0040
	O_EXCL      = 0x0080
	O_TRUNC     = 0x0200
	O_APPEND    = 0x0400
	O_DIRECTORY = 0x10000
)

// Seek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// MaxFD is the size of the single fd table that every process shares,
// matching spec §4.6's "fixed-size global fd table" rule.
const MaxFD = 128

// MaxMounts bounds the mount table, matching spec §4.6 ("8 entries").
const MaxMounts = 8

// Stat is the subset of file metadata the kernel surfaces to stat/fstat,
// matching Biscuit's stat.Stat_t fields.
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Size  int64
	IsDir bool
}

// Dirent is one directory entry returned by Readdir, packed into the
// getdents wire format by the syscall layer.
type Dirent struct {
	Name  string
	Ino   uint64
	IsDir bool
}

// File is the per-open-file operation set a filesystem backend
// implements, the polymorphic-capability shape spec §9's design notes
// call for in place of Biscuit's raw Fdops_i interface value embedding.
type File interface {
	Read(buf []byte) (int, errno.Err_t)
	Write(buf []byte) (int, errno.Err_t)
	Seek(off int64, whence int) (int64, errno.Err_t)
	Truncate(size int64) errno.Err_t
	Readdir() ([]Dirent, errno.Err_t)
	Stat() (Stat, errno.Err_t)
	Close() errno.Err_t
	// Reopen is called when a descriptor referencing this file is
	// duplicated (dup/dup2/fork), mirroring Biscuit's Fdops_i.Reopen.
	Reopen() errno.Err_t
}

// Filesystem is implemented once per mounted filesystem type (ramfs,
// ext2, ...) and operates on paths relative to its own mount root.
type Filesystem interface {
	Open(path ustr.Ustr, flags int, mode int) (File, errno.Err_t)
	Mkdir(path ustr.Ustr, mode int) errno.Err_t
	Unlink(path ustr.Ustr) errno.Err_t
	Rmdir(path ustr.Ustr) errno.Err_t
	Rename(oldp, newp ustr.Ustr) errno.Err_t
	Stat(path ustr.Ustr) (Stat, errno.Err_t)
}

type mountEntry struct {
	prefix ustr.Ustr
	fs     Filesystem
}

type fdEntry struct {
	file  File
	perms int
}

// VFS owns the mount table and the global fd table.
type VFS struct {
	mu     sync.Mutex
	mounts []mountEntry
	fds    [MaxFD]*fdEntry
}

// New returns an empty VFS with no mounts.
func New() *VFS {
	return &VFS{}
}

// Mount attaches fs at prefix (e.g. "/", "/dev"); longest-prefix match at
// lookup time means a more specific mount always wins over "/".
func (v *VFS) Mount(prefix ustr.Ustr, fs Filesystem) errno.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.mounts) >= MaxMounts {
		return errno.ENOSPC
	}
	for _, m := range v.mounts {
		if m.prefix.Eq(prefix) {
			return errno.EEXIST
		}
	}
	v.mounts = append(v.mounts, mountEntry{prefix: prefix, fs: fs})
	sort.Slice(v.mounts, func(i, j int) bool { return len(v.mounts[i].prefix) > len(v.mounts[j].prefix) })
	return 0
}

// Unmount removes the mount at prefix.
func (v *VFS) Unmount(prefix ustr.Ustr) errno.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.mounts {
		if m.prefix.Eq(prefix) {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			return 0
		}
	}
	return errno.EINVAL
}

// resolve finds the mount owning path (the table is kept sorted longest
// prefix first, so the first match is the longest) and returns the path
// relative to that mount's root.
func (v *VFS) resolve(path ustr.Ustr) (Filesystem, ustr.Ustr, errno.Err_t) {
	for _, m := range v.mounts {
		if hasPrefix(path, m.prefix) {
			rel := relativize(path, m.prefix)
			return m.fs, rel, 0
		}
	}
	return nil, nil, errno.ENOENT
}

func hasPrefix(path, prefix ustr.Ustr) bool {
	if prefix.Eq(ustr.MkUstrRoot()) {
		return true
	}
	if len(path) < len(prefix) {
		return false
	}
	if string(path[:len(prefix)]) != prefix.String() {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func relativize(path, prefix ustr.Ustr) ustr.Ustr {
	if prefix.Eq(ustr.MkUstrRoot()) {
		if len(path) == 0 {
			return ustr.MkUstrRoot()
		}
		return path
	}
	rel := path[len(prefix):]
	if len(rel) == 0 {
		return ustr.MkUstrRoot()
	}
	return rel
}

func (v *VFS) allocFD() (int, errno.Err_t) {
	for i := 0; i < MaxFD; i++ {
		if v.fds[i] == nil {
			return i, 0
		}
	}
	return 0, errno.EMFILE
}

// Open resolves path (relative to cwd unless absolute), routes it to the
// owning filesystem, and installs the result in a free fd slot.
func (v *VFS) Open(cwd, path ustr.Ustr, flags, mode int) (int, errno.Err_t) {
	full := ustr.Join(cwd, path)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return -1, err
	}
	f, err := fs.Open(rel, flags, mode)
	if err != 0 {
		return -1, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	fdn, err := v.allocFD()
	if err != 0 {
		f.Close()
		return -1, err
	}
	perms := 0
	switch flags & O_ACCMODE {
	case O_RDONLY:
		perms = fdRead
	case O_WRONLY:
		perms = fdWrite
	case O_RDWR:
		perms = fdRead | fdWrite
	}
	v.fds[fdn] = &fdEntry{file: f, perms: perms}
	return fdn, 0
}

const (
	fdRead  = 0x1
	fdWrite = 0x2
)

func (v *VFS) lookupFD(fd int) (*fdEntry, errno.Err_t) {
	if fd < 0 || fd >= MaxFD {
		return nil, errno.EBADF
	}
	e := v.fds[fd]
	if e == nil {
		return nil, errno.EBADF
	}
	return e, 0
}

// Install places an already-open File into fd, used to wire up the
// reserved stdin/stdout/stderr descriptors and pipe endpoints.
func (v *VFS) Install(fd int, f File, perms int) errno.Err_t {
	if fd < 0 || fd >= MaxFD {
		return errno.EBADF
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fds[fd] != nil {
		return errno.EEXIST
	}
	v.fds[fd] = &fdEntry{file: f, perms: perms}
	return 0
}

// InstallNext is Install but allocates the first free fd >= 0.
func (v *VFS) InstallNext(f File, perms int) (int, errno.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fdn, err := v.allocFD()
	if err != 0 {
		return -1, err
	}
	v.fds[fdn] = &fdEntry{file: f, perms: perms}
	return fdn, 0
}

func (v *VFS) Read(fd int, buf []byte) (int, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return 0, err
	}
	if e.perms&fdRead == 0 {
		return 0, errno.EBADF
	}
	return e.file.Read(buf)
}

func (v *VFS) Write(fd int, buf []byte) (int, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return 0, err
	}
	if e.perms&fdWrite == 0 {
		return 0, errno.EBADF
	}
	return e.file.Write(buf)
}

func (v *VFS) Seek(fd int, off int64, whence int) (int64, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return 0, err
	}
	return e.file.Seek(off, whence)
}

func (v *VFS) Truncate(fd int, size int64) errno.Err_t {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	return e.file.Truncate(size)
}

func (v *VFS) Fstat(fd int) (Stat, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return Stat{}, err
	}
	return e.file.Stat()
}

func (v *VFS) Getdents(fd int) ([]Dirent, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return nil, err
	}
	return e.file.Readdir()
}

// Close closes fd and frees its slot, matching Biscuit's Close_panic
// pattern without the panic: callers decide what to do with a nonzero
// close error.
func (v *VFS) Close(fd int) errno.Err_t {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	if err == 0 {
		v.fds[fd] = nil
	}
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	return e.file.Close()
}

// CloseAll closes every open descriptor in the shared table, whichever
// process opened it.
func (v *VFS) CloseAll() {
	v.mu.Lock()
	var toClose []File
	for i := 0; i < MaxFD; i++ {
		if v.fds[i] != nil {
			toClose = append(toClose, v.fds[i].file)
			v.fds[i] = nil
		}
	}
	v.mu.Unlock()
	for _, f := range toClose {
		f.Close()
	}
}

// Dup duplicates fd onto the first free descriptor.
func (v *VFS) Dup(fd int) (int, errno.Err_t) {
	v.mu.Lock()
	e, err := v.lookupFD(fd)
	v.mu.Unlock()
	if err != 0 {
		return -1, err
	}
	if err := e.file.Reopen(); err != 0 {
		return -1, err
	}
	nfd, err := v.InstallNext(e.file, e.perms)
	if err != 0 {
		e.file.Close()
		return -1, err
	}
	return nfd, 0
}

// Dup2 duplicates oldfd onto newfd, closing newfd first if it was open.
func (v *VFS) Dup2(oldfd, newfd int) (int, errno.Err_t) {
	if newfd < 0 || newfd >= MaxFD {
		return -1, errno.EBADF
	}
	v.mu.Lock()
	e, err := v.lookupFD(oldfd)
	v.mu.Unlock()
	if err != 0 {
		return -1, err
	}
	if oldfd == newfd {
		return newfd, 0
	}
	if err := e.file.Reopen(); err != 0 {
		return -1, err
	}
	v.mu.Lock()
	old := v.fds[newfd]
	v.fds[newfd] = &fdEntry{file: e.file, perms: e.perms}
	v.mu.Unlock()
	if old != nil {
		old.file.Close()
	}
	return newfd, 0
}

// Mkdir, Unlink, Rmdir, Rename, Stat route by path exactly like Open.
func (v *VFS) Mkdir(cwd, path ustr.Ustr, mode int) errno.Err_t {
	full := ustr.Join(cwd, path)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	return fs.Mkdir(rel, mode)
}

func (v *VFS) Unlink(cwd, path ustr.Ustr) errno.Err_t {
	full := ustr.Join(cwd, path)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	return fs.Unlink(rel)
}

func (v *VFS) Rmdir(cwd, path ustr.Ustr) errno.Err_t {
	full := ustr.Join(cwd, path)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	return fs.Rmdir(rel)
}

func (v *VFS) Rename(cwd, oldp, newp ustr.Ustr) errno.Err_t {
	full := ustr.Join(cwd, oldp)
	nfull := ustr.Join(cwd, newp)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return err
	}
	nfs, nrel, err := v.resolve(nfull)
	if err != 0 {
		return err
	}
	if nfs != fs {
		return errno.EINVAL // cross-mount rename is not supported
	}
	return fs.Rename(rel, nrel)
}

func (v *VFS) Stat(cwd, path ustr.Ustr) (Stat, errno.Err_t) {
	full := ustr.Join(cwd, path)
	v.mu.Lock()
	fs, rel, err := v.resolve(full)
	v.mu.Unlock()
	if err != 0 {
		return Stat{}, err
	}
	return fs.Stat(rel)
}

// Pipe creates a connected read/write fd pair backed by an in-memory
// ring. Both ends are installed as ordinary entries in the fd table (the
// first free slots); there is no separate pipe descriptor range.
func (v *VFS) Pipe() (readFD, writeFD int, err errno.Err_t) {
	p := newPipe()
	rfd, err := v.InstallNext(&pipeEnd{p: p, reader: true}, fdRead)
	if err != 0 {
		return -1, -1, err
	}
	wfd, err := v.InstallNext(&pipeEnd{p: p, reader: false}, fdWrite)
	if err != 0 {
		v.Close(rfd)
		return -1, -1, err
	}
	return rfd, wfd, 0
}
