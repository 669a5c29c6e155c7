// Package diag is the kernel's fatal-exception and profiling diagnostics:
// a faulting-instruction disassembler for the panic path and a /proc
// kprofile node serializing live allocator/scheduler counters.
//
// Grounded on Biscuit's fatal-exception report (print diagnostic state and
// halt) and its dead, commented-out pprof.WriteHeapProfile call in
// main.go: this package is where both of those get a real implementation
// instead of a hex dump placeholder, per SPEC_FULL.md's DOMAIN STACK.
package diag

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// mode64 selects x86asm's 64-bit decode table, matching this kernel's
// EM_X86_64-only scope (internal/elf rejects anything else).
const mode64 = 64

// DecodeFault disassembles the single instruction at the start of text,
// the bytes captured at RIP when a fatal kernel-mode exception fires.
// It returns a GNU-syntax rendering for the panic report, or a fallback
// string if the bytes don't decode to a valid instruction (e.g. the
// fault address wasn't actually executable, or text was truncated).
func DecodeFault(rip uint64, text []byte) string {
	inst, err := x86asm.Decode(text, mode64)
	if err != nil {
		return fmt.Sprintf("%#x: <bad instruction: %v>", rip, err)
	}
	return fmt.Sprintf("%#x: %s", rip, x86asm.GNUSyntax(inst, rip, nil))
}
