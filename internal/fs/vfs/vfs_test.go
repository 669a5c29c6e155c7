package vfs

import (
	"testing"

	"kernos/internal/errno"
	"kernos/internal/ustr"
)

// memFile/memFS is a minimal in-test Filesystem+File used to exercise the
// mount table and fd table without depending on ramfs or ext2.
type memFile struct {
	data []byte
	off  int64
	refs int
}

func (f *memFile) Read(buf []byte) (int, errno.Err_t) {
	if f.off >= int64(len(f.data)) {
		return 0, 0
	}
	n := copy(buf, f.data[f.off:])
	f.off += int64(n)
	return n, 0
}
func (f *memFile) Write(buf []byte) (int, errno.Err_t) {
	end := f.off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.off:], buf)
	f.off = end
	return len(buf), 0
}
func (f *memFile) Seek(off int64, whence int) (int64, errno.Err_t) {
	switch whence {
	case SEEK_SET:
		f.off = off
	case SEEK_CUR:
		f.off += off
	case SEEK_END:
		f.off = int64(len(f.data)) + off
	}
	return f.off, 0
}
func (f *memFile) Truncate(size int64) errno.Err_t {
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	}
	return 0
}
func (f *memFile) Readdir() ([]Dirent, errno.Err_t) { return nil, errno.ENOTDIR }
func (f *memFile) Stat() (Stat, errno.Err_t)        { return Stat{Size: int64(len(f.data))}, 0 }
func (f *memFile) Close() errno.Err_t               { f.refs--; return 0 }
func (f *memFile) Reopen() errno.Err_t              { f.refs++; return 0 }

type memFS struct {
	files map[string]*memFile
}

func newMemFS() *memFS { return &memFS{files: map[string]*memFile{}} }

func (m *memFS) Open(path ustr.Ustr, flags int, mode int) (File, errno.Err_t) {
	p := path.String()
	f, ok := m.files[p]
	if !ok {
		if flags&O_CREAT == 0 {
			return nil, errno.ENOENT
		}
		f = &memFile{refs: 1}
		m.files[p] = f
		return f, 0
	}
	f.refs++
	if flags&O_TRUNC != 0 {
		f.data = nil
	}
	return f, 0
}
func (m *memFS) Mkdir(path ustr.Ustr, mode int) errno.Err_t { return 0 }
func (m *memFS) Unlink(path ustr.Ustr) errno.Err_t {
	delete(m.files, path.String())
	return 0
}
func (m *memFS) Rmdir(path ustr.Ustr) errno.Err_t { return 0 }
func (m *memFS) Rename(oldp, newp ustr.Ustr) errno.Err_t {
	f, ok := m.files[oldp.String()]
	if !ok {
		return errno.ENOENT
	}
	m.files[newp.String()] = f
	delete(m.files, oldp.String())
	return 0
}
func (m *memFS) Stat(path ustr.Ustr) (Stat, errno.Err_t) {
	f, ok := m.files[path.String()]
	if !ok {
		return Stat{}, errno.ENOENT
	}
	return f.Stat()
}

func setup(t *testing.T) (*VFS, *memFS) {
	t.Helper()
	v := New()
	fs := newMemFS()
	if err := v.Mount(ustr.MkUstrRoot(), fs); err != 0 {
		t.Fatalf("mount: %v", err)
	}
	return v, fs
}

func TestOpenWriteReadRoundTrip(t *testing.T) {
	v, _ := setup(t)
	fd, err := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/hello.txt"), O_RDWR|O_CREAT, 0644)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	if n, err := v.Write(fd, []byte("hi")); err != 0 || n != 2 {
		t.Fatalf("write n=%d err=%v", n, err)
	}
	v.Seek(fd, 0, SEEK_SET)
	buf := make([]byte, 2)
	if n, err := v.Read(fd, buf); err != 0 || n != 2 || string(buf) != "hi" {
		t.Fatalf("read n=%d err=%v buf=%q", n, err, buf)
	}
	if err := v.Close(fd); err != 0 {
		t.Fatalf("close: %v", err)
	}
}

func TestLongestPrefixMatchWins(t *testing.T) {
	v := New()
	root := newMemFS()
	dev := newMemFS()
	v.Mount(ustr.MkUstrRoot(), root)
	v.Mount(ustr.Ustr("/dev"), dev)

	root.files["/dev/x"] = &memFile{} // should never be hit
	fd, err := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/dev/console"), O_RDWR|O_CREAT, 0)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	v.Close(fd)
	if _, ok := dev.files["/console"]; !ok {
		t.Fatal("expected /dev mount to receive the relative path /console")
	}
}

func TestFDTableExhaustion(t *testing.T) {
	v, _ := setup(t)
	var fds []int
	for i := 0; i < MaxFD; i++ {
		fd, err := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/f"), O_RDWR|O_CREAT, 0)
		if err != 0 {
			t.Fatalf("open %d: %v", i, err)
		}
		fds = append(fds, fd)
	}
	if _, err := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/f"), O_RDWR, 0); err != errno.EMFILE {
		t.Fatalf("expected EMFILE, got %v", err)
	}
	for _, fd := range fds {
		v.Close(fd)
	}
}

func TestDup2ClosesTarget(t *testing.T) {
	v, fs := setup(t)
	fd1, _ := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/a"), O_RDWR|O_CREAT, 0)
	fd2, _ := v.Open(ustr.MkUstrRoot(), ustr.Ustr("/b"), O_RDWR|O_CREAT, 0)
	if _, err := v.Dup2(fd1, fd2); err != 0 {
		t.Fatalf("dup2: %v", err)
	}
	v.Write(fd2, []byte("x"))
	v.Seek(fd1, 0, SEEK_SET)
	buf := make([]byte, 1)
	if n, _ := v.Read(fd1, buf); n != 1 || buf[0] != 'x' {
		t.Fatalf("dup2 target did not alias source fd: n=%d buf=%q", n, buf)
	}
	if refs := fs.files["/b"].refs; refs != 0 {
		t.Fatalf("dup2 did not close the target's previous file: refs=%d", refs)
	}
}

func TestPipeReadWrite(t *testing.T) {
	v := New()
	rfd, wfd, err := v.Pipe()
	if err != 0 {
		t.Fatalf("pipe: %v", err)
	}
	done := make(chan struct{})
	go func() {
		v.Write(wfd, []byte("ping"))
		v.Close(wfd)
		close(done)
	}()
	buf := make([]byte, 16)
	n, err := v.Read(rfd, buf)
	if err != 0 || string(buf[:n]) != "ping" {
		t.Fatalf("read n=%d err=%v buf=%q", n, err, buf[:n])
	}
	<-done
}

func TestPipeWriteAfterReaderClosedReturnsEPIPE(t *testing.T) {
	v := New()
	rfd, wfd, _ := v.Pipe()
	v.Close(rfd)
	if _, err := v.Write(wfd, []byte("x")); err != errno.EPIPE {
		t.Fatalf("expected EPIPE, got %v", err)
	}
}

func TestRenameAcrossMountsRejected(t *testing.T) {
	v := New()
	root := newMemFS()
	dev := newMemFS()
	v.Mount(ustr.MkUstrRoot(), root)
	v.Mount(ustr.Ustr("/dev"), dev)
	root.files["/a"] = &memFile{}
	if err := v.Rename(ustr.MkUstrRoot(), ustr.Ustr("/a"), ustr.Ustr("/dev/a")); err != errno.EINVAL {
		t.Fatalf("expected EINVAL for cross-mount rename, got %v", err)
	}
}
