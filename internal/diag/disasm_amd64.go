//go:build amd64

// Disassembly of the faulting instruction, amd64 only. The fault
// interceptor (internal/fault) only has the faulting data address, not a
// program counter — runtime.errorAddressString carries no PC — so
// fault.Guard's recover path captures one separately via
// runtime.Callers, where a plain Go panic's call stack is still
// available, and feeds it through ReadCode/DisassembleAt here. It is
// best-effort diagnostics only: failure to disassemble never affects
// the fault verdict.
package diag

import (
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

// DisassembleAt decodes up to one instruction starting at code and
// returns its textual form, or "" if it cannot be decoded (e.g. code is
// empty or the bytes are not a valid instruction).
func DisassembleAt(code []byte) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return ""
	}
	return x86asm.GNUSyntax(inst, 0, nil)
}

// ReadCode returns n bytes of executable text starting at pc, for
// DisassembleAt to decode. pc must be a code address obtained from
// runtime.Callers during a recovered fault; the caller is responsible
// for treating this as best-effort (a bad pc can itself fault).
func ReadCode(pc uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(pc)), n)
}
