package ext2

import (
	"bytes"
	"testing"

	"kernos/internal/block"
	"kernos/internal/errno"
	"kernos/internal/fs/vfs"
	"kernos/internal/ustr"
)

func freshDisk(t *testing.T, blocks uint32) *block.Disk {
	t.Helper()
	backing := block.NewMemBacking(int64(blocks) * 1024)
	id := block.Identity{Present: true, Sectors: uint64(blocks) * 2, DMACapable: false}
	disk := block.New(backing, id, nil)
	if err := Format(disk, FormatOptions{TotalBlocks: blocks, InodesPerGroup: 256}); err != 0 {
		t.Fatalf("format: %v", err)
	}
	return disk
}

func mustMount(t *testing.T, disk *block.Disk) *FS {
	t.Helper()
	fs, err := New(disk)
	if err != 0 {
		t.Fatalf("mount: %v", err)
	}
	return fs
}

func TestFormatThenMountRootIsEmptyDir(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	st, err := fs.Stat(ustr.MkUstrRoot())
	if err != 0 {
		t.Fatalf("stat /: %v", err)
	}
	if !st.IsDir {
		t.Fatal("root is not a directory")
	}

	f, err := fs.Open(ustr.MkUstrRoot(), vfs.O_RDONLY|vfs.O_DIRECTORY, 0)
	if err != 0 {
		t.Fatalf("open /: %v", err)
	}
	ents, err := f.Readdir()
	if err != 0 {
		t.Fatalf("readdir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range ents {
		names[e.Name] = true
	}
	if !names["."] || !names[".."] {
		t.Fatalf("expected . and .., got %v", ents)
	}
}

func TestCreateWriteReadFile(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	path := ustr.Ustr("/hello.txt")
	f, err := fs.Open(path, vfs.O_CREAT|vfs.O_RDWR, 0644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	want := []byte("hello ext2 world")
	n, err := f.Write(want)
	if err != 0 || n != len(want) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	f.Seek(0, vfs.SEEK_SET)
	got := make([]byte, len(want))
	n, err = f.Read(got)
	if err != 0 || n != len(want) {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestMkdirAndList(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	if err := fs.Mkdir(ustr.Ustr("/sub"), 0755); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := fs.Open(ustr.Ustr("/sub"), vfs.O_RDONLY|vfs.O_DIRECTORY, 0)
	if err != 0 {
		t.Fatalf("open /sub: %v", err)
	}
	ents, err := f.Readdir()
	if err != 0 {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected just . and .., got %v", ents)
	}

	root, err := fs.Open(ustr.MkUstrRoot(), vfs.O_RDONLY|vfs.O_DIRECTORY, 0)
	if err != 0 {
		t.Fatalf("open /: %v", err)
	}
	rents, _ := root.Readdir()
	found := false
	for _, e := range rents {
		if e.Name == "sub" && e.IsDir {
			found = true
		}
	}
	if !found {
		t.Fatal("sub not listed under root")
	}
}

func TestSparseFileReadsZero(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	f, err := fs.Open(ustr.Ustr("/sparse"), vfs.O_CREAT|vfs.O_RDWR, 0644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(8192); err != 0 {
		t.Fatalf("truncate: %v", err)
	}
	f.Seek(4096, vfs.SEEK_SET)
	buf := make([]byte, 100)
	n, err := f.Read(buf)
	if err != 0 || n != 100 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("expected zero-filled hole")
		}
	}
}

func TestIndirectBlockAddressing(t *testing.T) {
	disk := freshDisk(t, 16384)
	fs := mustMount(t, disk)

	f, err := fs.Open(ustr.Ustr("/big"), vfs.O_CREAT|vfs.O_RDWR, 0644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	// 12 direct blocks of 1024 bytes cover 12288 bytes; write well past
	// that to force single-indirect addressing.
	data := bytes.Repeat([]byte{0xAB}, 20000)
	n, err := f.Write(data)
	if err != 0 || n != len(data) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	f.Seek(19000, vfs.SEEK_SET)
	got := make([]byte, 500)
	n, err = f.Read(got)
	if err != 0 || n != 500 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	for _, b := range got {
		if b != 0xAB {
			t.Fatal("indirect block data mismatch")
		}
	}
}

func TestUnlinkThenRmdir(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	if _, err := fs.Open(ustr.Ustr("/d/f"), vfs.O_CREAT|vfs.O_RDWR, 0); err != errno.ENOENT {
		t.Fatalf("expected ENOENT creating under missing dir, got %v", err)
	}

	if err := fs.Mkdir(ustr.Ustr("/d2"), 0755); err != 0 {
		t.Fatalf("mkdir /d2: %v", err)
	}
	if _, err := fs.Open(ustr.Ustr("/d2/f"), vfs.O_CREAT|vfs.O_RDWR, 0); err != 0 {
		t.Fatalf("create /d2/f: %v", err)
	}
	if err := fs.Rmdir(ustr.Ustr("/d2")); err != errno.ENOTEMPTY {
		t.Fatalf("expected ENOTEMPTY, got %v", err)
	}
	if err := fs.Unlink(ustr.Ustr("/d2/f")); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if err := fs.Rmdir(ustr.Ustr("/d2")); err != 0 {
		t.Fatalf("rmdir: %v", err)
	}
	if _, err := fs.Stat(ustr.Ustr("/d2")); err != errno.ENOENT {
		t.Fatalf("expected ENOENT after rmdir, got %v", err)
	}
}

func TestRenameMovesFile(t *testing.T) {
	disk := freshDisk(t, 4096)
	fs := mustMount(t, disk)

	fs.Open(ustr.Ustr("/a"), vfs.O_CREAT|vfs.O_RDWR, 0)
	if err := fs.Rename(ustr.Ustr("/a"), ustr.Ustr("/b")); err != 0 {
		t.Fatalf("rename: %v", err)
	}
	if _, err := fs.Stat(ustr.Ustr("/a")); err != errno.ENOENT {
		t.Fatalf("expected /a gone, got %v", err)
	}
	if _, err := fs.Stat(ustr.Ustr("/b")); err != 0 {
		t.Fatalf("expected /b to exist: %v", err)
	}
}
