package diag

import (
	"testing"

	"kernos/internal/mem/pmm"
	"kernos/internal/mem/vmm"
	"kernos/internal/proc"
	"kernos/internal/ustr"
)

func TestKProfileReadProducesGzippedProfile(t *testing.T) {
	a := pmm.New([]pmm.MapEntry{{Base: 0, Length: 4096 * 64, Kind: pmm.Usable}})
	pt := proc.NewTable(vmm.New(a))
	if _, err := pt.Spawn(0, ustr.MkUstrRoot()); err != 0 {
		t.Fatalf("spawn: %v", err)
	}

	kp := New(Sources{PMM: a, Procs: pt})
	buf := make([]byte, 4096)
	n, err := kp.Read(buf)
	if err != 0 {
		t.Fatalf("read: %v", err)
	}
	if n < 2 || buf[0] != 0x1f || buf[1] != 0x8b {
		t.Fatalf("expected a gzip stream, got %d bytes starting %x", n, buf[:min(n, 4)])
	}
}

func TestKProfileIsReadOnly(t *testing.T) {
	kp := New(Sources{})
	if _, err := kp.Write([]byte("x")); err == 0 {
		t.Fatal("expected write to a profile node to fail")
	}
}

func TestKProfileReopenResamples(t *testing.T) {
	a := pmm.New([]pmm.MapEntry{{Base: 0, Length: 4096 * 16, Kind: pmm.Usable}})
	kp := New(Sources{PMM: a})
	buf := make([]byte, 4096)
	if _, err := kp.Read(buf); err != 0 {
		t.Fatalf("read: %v", err)
	}
	if err := kp.Reopen(); err != 0 {
		t.Fatalf("reopen: %v", err)
	}
	if kp.buf != nil {
		t.Fatal("expected reopen to drop the cached snapshot")
	}
}
