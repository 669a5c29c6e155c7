package ramfs

import (
	"testing"

	"kernos/internal/errno"
	"kernos/internal/fs/vfs"
	"kernos/internal/ustr"
)

func TestCreateWriteReadFile(t *testing.T) {
	fs := New(false)
	f, err := fs.Open(ustr.Ustr("/a.txt"), vfs.O_RDWR|vfs.O_CREAT, 0644)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	f.Write([]byte("hello world"))
	f.Seek(0, vfs.SEEK_SET)
	buf := make([]byte, 11)
	n, err := f.Read(buf)
	if err != 0 || string(buf[:n]) != "hello world" {
		t.Fatalf("read n=%d err=%v buf=%q", n, err, buf[:n])
	}
}

func TestMkdirAndReaddir(t *testing.T) {
	fs := New(false)
	if err := fs.Mkdir(ustr.Ustr("/dir"), 0755); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := fs.Open(ustr.Ustr("/dir/x"), vfs.O_RDWR|vfs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	f.Close()

	d, err := fs.Open(ustr.Ustr("/dir"), vfs.O_DIRECTORY, 0)
	if err != 0 {
		t.Fatalf("opendir: %v", err)
	}
	entries, err := d.Readdir()
	if err != 0 || len(entries) != 1 || entries[0].Name != "x" {
		t.Fatalf("readdir: entries=%v err=%v", entries, err)
	}
}

func TestUnlinkThenRmdirRoundTrip(t *testing.T) {
	fs := New(false)
	fs.Mkdir(ustr.Ustr("/d"), 0755)
	f, _ := fs.Open(ustr.Ustr("/d/f"), vfs.O_RDWR|vfs.O_CREAT, 0)
	f.Close()
	if err := fs.Unlink(ustr.Ustr("/d/f")); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if err := fs.Rmdir(ustr.Ustr("/d")); err != 0 {
		t.Fatalf("rmdir: %v", err)
	}
	if _, err := fs.Stat(ustr.Ustr("/d")); err != errno.ENOENT {
		t.Fatalf("expected ENOENT, got %v", err)
	}
}

func TestRmdirNonEmptyFails(t *testing.T) {
	fs := New(false)
	fs.Mkdir(ustr.Ustr("/d"), 0755)
	f, _ := fs.Open(ustr.Ustr("/d/f"), vfs.O_RDWR|vfs.O_CREAT, 0)
	f.Close()
	if err := fs.Rmdir(ustr.Ustr("/d")); err != errno.ENOTEMPTY {
		t.Fatalf("expected ENOTEMPTY, got %v", err)
	}
}

func TestSparseGrowthZerosGap(t *testing.T) {
	fs := New(false)
	f, _ := fs.Open(ustr.Ustr("/s"), vfs.O_RDWR|vfs.O_CREAT, 0)
	f.Seek(100, vfs.SEEK_SET)
	f.Write([]byte("end"))
	f.Seek(50, vfs.SEEK_SET)
	buf := make([]byte, 4)
	n, _ := f.Read(buf)
	if n != 4 {
		t.Fatalf("expected 4 zero bytes, got %d", n)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("expected sparse region to read zero, got %x", b)
		}
	}
}

func TestRenameMoves(t *testing.T) {
	fs := New(false)
	f, _ := fs.Open(ustr.Ustr("/a"), vfs.O_RDWR|vfs.O_CREAT, 0)
	f.Close()
	if err := fs.Rename(ustr.Ustr("/a"), ustr.Ustr("/b")); err != 0 {
		t.Fatalf("rename: %v", err)
	}
	if _, err := fs.Stat(ustr.Ustr("/a")); err != errno.ENOENT {
		t.Fatal("expected old path gone")
	}
	if _, err := fs.Stat(ustr.Ustr("/b")); err != 0 {
		t.Fatal("expected new path present")
	}
}

func TestNoRefcountUnlinkFreesImmediately(t *testing.T) {
	fs := New(true)
	f, _ := fs.Open(ustr.Ustr("/console"), vfs.O_RDWR|vfs.O_CREAT, 0)
	fs.Unlink(ustr.Ustr("/console"))
	// Even with the fd still open, the slot is reclaimed for /dev-style fs.
	if _, err := fs.Stat(ustr.Ustr("/console")); err != errno.ENOENT {
		t.Fatal("expected immediate removal under noRefcount")
	}
	f.Close()
}
