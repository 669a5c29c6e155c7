package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildMini assembles the smallest ELF64 executable debug/elf will parse:
// one ELF header, one PT_LOAD program header, and a handful of code bytes.
func buildMini(t *testing.T, entry uint64, code []byte) []byte {
	t.Helper()
	const ehsize = 64
	const phsize = 56
	phoff := uint64(ehsize)
	dataOff := uint64(ehsize + phsize)

	buf := make([]byte, dataOff+uint64(len(code)))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = byte(elf.ELFCLASS64)
	buf[5] = byte(elf.ELFDATA2LSB)
	buf[6] = 1 // EI_VERSION
	binary.LittleEndian.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(buf[20:], 1) // e_version
	binary.LittleEndian.PutUint64(buf[24:], entry)
	binary.LittleEndian.PutUint64(buf[32:], phoff)
	binary.LittleEndian.PutUint16(buf[52:], ehsize)
	binary.LittleEndian.PutUint16(buf[54:], phsize)
	binary.LittleEndian.PutUint16(buf[56:], 1) // e_phnum

	ph := buf[phoff:]
	binary.LittleEndian.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(ph[4:], uint32(elf.PF_X|elf.PF_R))
	binary.LittleEndian.PutUint64(ph[8:], dataOff)       // p_offset
	binary.LittleEndian.PutUint64(ph[16:], entry&^0xfff) // p_vaddr, page aligned
	binary.LittleEndian.PutUint64(ph[24:], entry&^0xfff) // p_paddr
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(code))) // p_memsz
	binary.LittleEndian.PutUint64(ph[48:], 0x1000)             // p_align

	copy(buf[dataOff:], code)
	return buf
}

func TestParseMinimalExecutable(t *testing.T) {
	entry := uint64(0x400000 + 0x78)
	code := bytes.Repeat([]byte{0x90}, 16) // nops
	raw := buildMini(t, entry, code)

	img, err := Parse(raw)
	if err != 0 {
		t.Fatalf("parse: %v", err)
	}
	if img.Entry != entry {
		t.Fatalf("entry = %#x, want %#x", img.Entry, entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(img.Segments))
	}
	seg := img.Segments[0]
	if !seg.Executable || seg.Writable {
		t.Fatalf("expected R+X, non-writable segment, got %+v", seg)
	}
	if !bytes.Equal(seg.Data, code) {
		t.Fatalf("segment data mismatch")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not an elf file at all")); err == 0 {
		t.Fatal("expected a parse error")
	}
}
