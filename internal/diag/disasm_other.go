//go:build !amd64

package diag

// DisassembleAt is a no-op on non-amd64 hosts; x86asm only understands
// the x86/amd64 instruction encoding.
func DisassembleAt(code []byte) string {
	return ""
}

// ReadCode is a no-op on non-amd64 hosts; see disasm_amd64.go.
func ReadCode(pc uintptr, n int) []byte {
	return nil
}
