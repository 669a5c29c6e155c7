// Package ramfs is the in-memory VFS backend used for /dev and as the
// bootstrap root before a persistent filesystem is mounted. Nodes live in
// a flat arena addressed by index rather than pointer, the same
// pool-of-slots shape Biscuit's Objref_t-backed block cache uses
// (biscuit/src/fs/blk.go) to avoid raw pointer cycles between parent and
// child; each directory keeps its children as a slice of arena indices
// instead of an intrusive linked list.
package ramfs

import (
	"sync"

	"kernos/internal/errno"
	"kernos/internal/fs/vfs"
	"kernos/internal/ustr"
)

type kind int

const (
	kindFile kind = iota
	kindDir
)

const minGrowth = 4096

type node struct {
	kind     kind
	name     string
	data     []byte
	size     int // logical size; data may be over-allocated (doubling growth)
	children []int
	parent   int
	refs     int
	freed    bool
}

// FS is an in-memory filesystem rooted at index 0.
type FS struct {
	mu    sync.Mutex
	nodes []*node
	free  []int
	// noRefcount scopes unlink-without-waiting-for-last-close to backends
	// like /dev where every node is a placeholder device file, matching
	// spec §9's decision to keep ramfs's simplified unlink semantics there
	// rather than plumb full orphan-inode tracking into a memory-only fs.
	noRefcount bool
}

// New returns an empty ramfs with just a root directory. noRefcount scopes
// unlink to not wait for descriptor close (appropriate for /dev).
func New(noRefcount bool) *FS {
	fs := &FS{noRefcount: noRefcount}
	fs.nodes = append(fs.nodes, &node{kind: kindDir, name: "/", parent: -1})
	return fs
}

func (fs *FS) alloc(n *node) int {
	if len(fs.free) > 0 {
		i := fs.free[len(fs.free)-1]
		fs.free = fs.free[:len(fs.free)-1]
		fs.nodes[i] = n
		return i
	}
	fs.nodes = append(fs.nodes, n)
	return len(fs.nodes) - 1
}

func (fs *FS) lookupChild(dir int, name string) int {
	for _, c := range fs.nodes[dir].children {
		if fs.nodes[c] != nil && fs.nodes[c].name == name {
			return c
		}
	}
	return -1
}

// resolve walks path from the root, returning the node index, or -1 with
// an error if any component is missing.
func (fs *FS) resolve(path ustr.Ustr) (int, errno.Err_t) {
	cur := 0
	for _, c := range path.Components() {
		if fs.nodes[cur].kind != kindDir {
			return -1, errno.ENOTDIR
		}
		next := fs.lookupChild(cur, c)
		if next == -1 {
			return -1, errno.ENOENT
		}
		cur = next
	}
	return cur, 0
}

// resolveParent resolves all but the last component, returning the parent
// directory index and the final component name.
func (fs *FS) resolveParent(path ustr.Ustr) (int, string, errno.Err_t) {
	comps := path.Components()
	if len(comps) == 0 {
		return -1, "", errno.EINVAL
	}
	cur := 0
	for _, c := range comps[:len(comps)-1] {
		if fs.nodes[cur].kind != kindDir {
			return -1, "", errno.ENOTDIR
		}
		next := fs.lookupChild(cur, c)
		if next == -1 {
			return -1, "", errno.ENOENT
		}
		cur = next
	}
	return cur, comps[len(comps)-1], 0
}

// Open implements vfs.Filesystem.
func (fs *FS) Open(path ustr.Ustr, flags int, mode int) (vfs.File, errno.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolve(path)
	if err != 0 {
		if err != errno.ENOENT || flags&vfs.O_CREAT == 0 {
			return nil, err
		}
		parent, name, perr := fs.resolveParent(path)
		if perr != 0 {
			return nil, perr
		}
		if fs.nodes[parent].kind != kindDir {
			return nil, errno.ENOTDIR
		}
		if fs.lookupChild(parent, name) != -1 {
			return nil, errno.EEXIST
		}
		n := &node{kind: kindFile, name: name, parent: parent, refs: 1}
		idx = fs.alloc(n)
		fs.nodes[parent].children = append(fs.nodes[parent].children, idx)
		return &file{fs: fs, idx: idx}, 0
	}
	n := fs.nodes[idx]
	if n.kind == kindDir && flags&vfs.O_DIRECTORY == 0 && flags&(vfs.O_WRONLY|vfs.O_RDWR) != 0 {
		return nil, errno.EISDIR
	}
	if flags&vfs.O_DIRECTORY != 0 && n.kind != kindDir {
		return nil, errno.ENOTDIR
	}
	n.refs++
	if flags&vfs.O_TRUNC != 0 && n.kind == kindFile {
		n.data = nil
		n.size = 0
	}
	f := &file{fs: fs, idx: idx}
	if flags&vfs.O_APPEND != 0 {
		f.off = int64(n.size)
	}
	return f, 0
}

// Mkdir implements vfs.Filesystem.
func (fs *FS) Mkdir(path ustr.Ustr, mode int) errno.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, name, err := fs.resolveParent(path)
	if err != 0 {
		return err
	}
	if fs.nodes[parent].kind != kindDir {
		return errno.ENOTDIR
	}
	if fs.lookupChild(parent, name) != -1 {
		return errno.EEXIST
	}
	n := &node{kind: kindDir, name: name, parent: parent}
	idx := fs.alloc(n)
	fs.nodes[parent].children = append(fs.nodes[parent].children, idx)
	return 0
}

func (fs *FS) removeChild(parent int, idx int) {
	children := fs.nodes[parent].children
	for i, c := range children {
		if c == idx {
			fs.nodes[parent].children = append(children[:i], children[i+1:]...)
			return
		}
	}
}

// Unlink implements vfs.Filesystem.
func (fs *FS) Unlink(path ustr.Ustr) errno.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.resolve(path)
	if err != 0 {
		return err
	}
	n := fs.nodes[idx]
	if n.kind != kindFile {
		return errno.EISDIR
	}
	fs.removeChild(n.parent, idx)
	if fs.noRefcount || n.refs == 0 {
		fs.free = append(fs.free, idx)
		fs.nodes[idx] = nil
	} else {
		n.freed = true
	}
	return 0
}

// Rmdir implements vfs.Filesystem.
func (fs *FS) Rmdir(path ustr.Ustr) errno.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.resolve(path)
	if err != 0 {
		return err
	}
	n := fs.nodes[idx]
	if n.kind != kindDir {
		return errno.ENOTDIR
	}
	if len(n.children) > 0 {
		return errno.ENOTEMPTY
	}
	if idx == 0 {
		return errno.EINVAL
	}
	fs.removeChild(n.parent, idx)
	fs.free = append(fs.free, idx)
	fs.nodes[idx] = nil
	return 0
}

// Rename implements vfs.Filesystem.
func (fs *FS) Rename(oldp, newp ustr.Ustr) errno.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.resolve(oldp)
	if err != 0 {
		return err
	}
	np, name, err := fs.resolveParent(newp)
	if err != 0 {
		return err
	}
	if fs.lookupChild(np, name) != -1 {
		return errno.EEXIST
	}
	n := fs.nodes[idx]
	fs.removeChild(n.parent, idx)
	n.parent = np
	n.name = name
	fs.nodes[np].children = append(fs.nodes[np].children, idx)
	return 0
}

// Stat implements vfs.Filesystem.
func (fs *FS) Stat(path ustr.Ustr) (vfs.Stat, errno.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, err := fs.resolve(path)
	if err != 0 {
		return vfs.Stat{}, err
	}
	return fs.statLocked(idx), 0
}

func (fs *FS) statLocked(idx int) vfs.Stat {
	n := fs.nodes[idx]
	return vfs.Stat{Ino: uint64(idx), Size: int64(n.size), IsDir: n.kind == kindDir}
}

// growFor doubles n.data's capacity (minimum minGrowth) until it can hold
// end bytes, the "doubling byte-buffer growth" rule spec §4.5 names.
func growFor(data []byte, end int) []byte {
	cap := len(data)
	if cap == 0 {
		cap = minGrowth
	}
	for cap < end {
		cap *= 2
	}
	if cap == len(data) {
		return data
	}
	grown := make([]byte, cap)
	copy(grown, data)
	return grown
}

type file struct {
	fs  *FS
	idx int
	off int64
}

func (f *file) Read(buf []byte) (int, errno.Err_t) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	if n.kind != kindFile {
		return 0, errno.EISDIR
	}
	if f.off >= int64(n.size) {
		return 0, 0
	}
	end := int64(n.size)
	if f.off+int64(len(buf)) < end {
		end = f.off + int64(len(buf))
	}
	nread := copy(buf, n.data[f.off:end])
	f.off += int64(nread)
	return nread, 0
}

func (f *file) Write(buf []byte) (int, errno.Err_t) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	if n.kind != kindFile {
		return 0, errno.EISDIR
	}
	end := int(f.off) + len(buf)
	n.data = growFor(n.data, end)
	copy(n.data[f.off:end], buf)
	if end > n.size {
		n.size = end
	}
	f.off += int64(len(buf))
	return len(buf), 0
}

func (f *file) Seek(off int64, whence int) (int64, errno.Err_t) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	switch whence {
	case vfs.SEEK_SET:
		f.off = off
	case vfs.SEEK_CUR:
		f.off += off
	case vfs.SEEK_END:
		f.off = int64(n.size) + off
	default:
		return 0, errno.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, errno.EINVAL
	}
	return f.off, 0
}

func (f *file) Truncate(size int64) errno.Err_t {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	if n.kind != kindFile {
		return errno.EISDIR
	}
	if int(size) <= len(n.data) {
		n.size = int(size)
		return 0
	}
	n.data = growFor(n.data, int(size))
	n.size = int(size)
	return 0
}

func (f *file) Readdir() ([]vfs.Dirent, errno.Err_t) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	if n.kind != kindDir {
		return nil, errno.ENOTDIR
	}
	out := make([]vfs.Dirent, 0, len(n.children))
	for _, c := range n.children {
		cn := f.fs.nodes[c]
		if cn == nil {
			continue
		}
		out = append(out, vfs.Dirent{Name: cn.name, Ino: uint64(c), IsDir: cn.kind == kindDir})
	}
	return out, 0
}

func (f *file) Stat() (vfs.Stat, errno.Err_t) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.fs.statLocked(f.idx), 0
}

func (f *file) Close() errno.Err_t {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := f.fs.nodes[f.idx]
	if n == nil {
		return 0
	}
	n.refs--
	if n.refs <= 0 && n.freed {
		f.fs.free = append(f.fs.free, f.idx)
		f.fs.nodes[f.idx] = nil
	}
	return 0
}

func (f *file) Reopen() errno.Err_t {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if n := f.fs.nodes[f.idx]; n != nil {
		n.refs++
	}
	return 0
}
