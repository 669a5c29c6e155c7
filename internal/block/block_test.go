package block

import (
	"testing"

	"kernos/internal/mem/pmm"
)

func identityFixture(dma bool) Identity {
	return Identity{Present: true, Model: "kernos-disk", Serial: "000001", Sectors: 1 << 20, LBA48: true, DMACapable: dma}
}

func TestPIOReadWriteRoundTrip(t *testing.T) {
	backing := NewMemBacking(1 << 20)
	d := New(backing, identityFixture(false), nil)

	buf := make([]byte, SectorSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := d.Write(10, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, SectorSize)
	if err := d.Read(10, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("byte %d: got %x want %x", i, got[i], buf[i])
		}
	}
}

func TestDMAPathUsedWhenCapableAndLarge(t *testing.T) {
	backing := NewMemBacking(1 << 20)
	bounce := pmm.New([]pmm.MapEntry{{Base: 0, Length: 64 * pmm.PGSIZE, Kind: pmm.Usable}})
	d := New(backing, identityFixture(true), bounce)

	buf := make([]byte, pmm.PGSIZE*2)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	req := NewRequest(CmdWrite, 0, buf, true)
	if !d.useDMA(req) {
		t.Fatal("expected DMA path for large DMA-capable transfer")
	}
	d.Start(req)
	if err := <-req.AckCh; err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make([]byte, len(buf))
	if err := d.Read(0, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("byte %d: got %x want %x", i, got[i], buf[i])
		}
	}
	// Bounce frames must be returned to the pool after each transfer.
	if bounce.FreeBytes() != bounce.TotalBytes() {
		t.Fatal("bounce buffer frames leaked")
	}
}

func TestIdentifyParsesModelAndSectors(t *testing.T) {
	var words [256]uint16
	model := "KERNOS VIRTUAL DISK "
	for i := 0; i < len(model)/2; i++ {
		hi := model[i*2]
		lo := model[i*2+1]
		words[27+i] = uint16(hi)<<8 | uint16(lo)
	}
	words[49] = 1 << 8 // DMA capable
	words[83] = 1 << 10
	words[100] = 0x1234
	words[101] = 0x0001

	id := Identify(words)
	if id.Model != "KERNOS VIRTUAL DISK" {
		t.Fatalf("model = %q", id.Model)
	}
	if !id.DMACapable || !id.LBA48 {
		t.Fatal("expected DMA-capable, LBA48 drive")
	}
	want := uint64(0x1234) | uint64(0x0001)<<16
	if id.Sectors != want {
		t.Fatalf("sectors = %#x, want %#x", id.Sectors, want)
	}
}

func TestStatsReportsCounters(t *testing.T) {
	backing := NewMemBacking(SectorSize)
	d := New(backing, identityFixture(false), nil)
	d.Write(0, make([]byte, SectorSize))
	d.Read(0, make([]byte, SectorSize))
	s := d.Stats()
	if s == "" {
		t.Fatal("expected non-empty stats")
	}
}
