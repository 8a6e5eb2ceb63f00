// Package diag carries this engine's ambient logging plus two small
// enrichments: an amd64 instruction disassembly of the faulting program
// counter (golang.org/x/arch/x86/x86asm), and a pprof profile of the
// live LSA population, one sample per descriptor
// (github.com/google/pprof/profile), that a host program can write to
// disk for offline inspection.
//
// biscuit logs kernel diagnostics with plain fmt.Printf/log calls (see
// biscuit/src/mem/mem.go's Phys_init) rather than a structured logging
// library; this package follows the same idiom with the standard
// library's log package.
package diag

import (
	"log"
	"os"
)

// Logger is the package-wide diagnostic logger, in biscuit's own plain
// style (no structured logging dependency).
var Logger = log.New(os.Stderr, "lsa: ", log.LstdFlags|log.Lmicroseconds)

// FaultVerdict logs a fault-interceptor decision. A match is logged by
// lsa through the onMatch hook it passes to fault.Guard; a no-match is
// logged by fault.Guard itself just before it re-raises the panic.
func FaultVerdict(matched bool, addr uintptr, tid int32) {
	if matched {
		Logger.Printf("fault at %#x matched thread %d's LSA; terminating that thread", addr, tid)
	} else {
		Logger.Printf("fault at %#x matched no registered LSA; re-raising", addr)
	}
}

// CoWSplit is logged whenever a write splits a shared page.
func CoWSplit(pageIndex int) {
	Logger.Printf("cow split on page index %d", pageIndex)
}

// FaultInstruction is logged alongside a Matched FaultVerdict when the
// faulting program counter could be disassembled.
func FaultInstruction(asm string) {
	Logger.Printf("faulting instruction: %s", asm)
}
