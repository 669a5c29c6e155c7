// Package elf loads a statically linked ELF64 executable's PT_LOAD
// segments for internal/syscall's execve handler. It uses the standard
// library's debug/elf the same way the teacher's own chentry tool does
// (biscuit/src/kernel/chentry.go): that tool validates ELFCLASS64,
// ELFDATA2LSB, ET_EXEC, and EM_X86_64 before touching a binary's header,
// the same checks Parse runs here before trusting any program header
// (Parse additionally accepts ET_DYN).
package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"kernos/internal/errno"
)

// Segment is one PT_LOAD program header, ready to map: a virtual address,
// the file bytes that back its head, and the flags that pick page
// permissions (memsz may exceed filesz, the remainder is the zero-filled
// bss tail).
type Segment struct {
	Vaddr      uint64
	Filesz     uint64
	Memsz      uint64
	Data       []byte
	Writable   bool
	Executable bool
}

// Image is a parsed executable: its entry point and loadable segments.
type Image struct {
	Entry    uint64
	Segments []Segment
}

// Parse validates buf as a little-endian x86_64 ELF64 executable (or
// position-independent executable) and returns its entry point and
// PT_LOAD segments. No dynamic linking, no relocations, no section
// headers: exactly what a statically linked init binary needs.
func Parse(buf []byte) (*Image, errno.Err_t) {
	f, ferr := elf.NewFile(bytes.NewReader(buf))
	if ferr != nil {
		return nil, errno.ENOEXEC
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB || f.Machine != elf.EM_X86_64 {
		return nil, errno.ENOEXEC
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, errno.ENOEXEC
	}

	img := &Image{Entry: f.Entry}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, rerr := io.ReadFull(prog.Open(), data); rerr != nil {
			return nil, errno.ENOEXEC
		}
		img.Segments = append(img.Segments, Segment{
			Vaddr:      prog.Vaddr,
			Filesz:     prog.Filesz,
			Memsz:      prog.Memsz,
			Data:       data,
			Writable:   prog.Flags&elf.PF_W != 0,
			Executable: prog.Flags&elf.PF_X != 0,
		})
	}
	if len(img.Segments) == 0 {
		return nil, errno.ENOEXEC
	}
	return img, 0
}
