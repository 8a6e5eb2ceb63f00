// Package fault implements the LSA fault interceptor: catching an
// invalid access to protected LSA memory, identifying which thread's
// LSA was touched, and terminating only the thread that touched it.
//
// A process-wide sigaction handler for SIGSEGV/SIGBUS would page-align
// the faulting address, scan every descriptor in the registry, and
// either kill only the offending thread (on a match) or restore the
// default disposition and re-raise (on no match). Go code cannot
// install such a handler without cgo; instead this package leans on
// runtime/debug.SetPanicOnFault, which converts invalid-memory-access
// traps reaching Go code — the same class SIGSEGV/SIGBUS deliver —
// into a recoverable, goroutine-local panic. See SPEC_FULL.md §4 for
// the full rationale.
package fault

import (
	"runtime"
	"runtime/debug"

	"lsa/internal/align"
	"lsa/internal/diag"
	"lsa/internal/page"
	"lsa/internal/registry"
)

// addressFault is the interface the Go runtime's fault-derived panic
// value implements (runtime.errorAddressString, unexported but
// documented by runtime/debug.SetPanicOnFault since Go 1.10).
type addressFault interface {
	error
	RuntimeError()
	Addr() uintptr
}

// Verdict reports what the interceptor decided about a recovered panic.
type Verdict int

const (
	// NotAFault means the recovered value was not an address fault and
	// must be re-panicked by the caller.
	NotAFault Verdict = iota
	// Unmatched means it was an address fault but the address belongs
	// to no registered LSA. The caller must restore normal behavior by
	// re-panicking.
	Unmatched
	// Matched means the faulting address was inside some thread's LSA;
	// the caller must terminate only the current thread.
	Matched
)

// Classify inspects a value recovered from panic() and determines the
// fault-interceptor verdict against reg. When the verdict is Matched, it
// also returns the tid of the thread whose LSA was touched (which may or
// may not be the caller's own thread: every descriptor in the registry
// is scanned, not only the current thread's).
func Classify(recovered any, reg *registry.Registry) (Verdict, registry.TID) {
	af, ok := recovered.(addressFault)
	if !ok {
		return NotAFault, 0
	}
	base := align.Down(af.Addr(), uintptr(page.Size))
	tid, ok := reg.FindOwner(base)
	if !ok {
		return Unmatched, 0
	}
	return Matched, tid
}

// Enable turns on fault interception for the calling goroutine. It must
// be called once per thread, after runtime.LockOSThread, before any
// code that might dereference LSA memory directly runs. It is idempotent
// per the runtime's own SetPanicOnFault semantics (per-goroutine, not
// global) but callers should still only call it once per Run (see the
// lsa package).
func Enable() {
	debug.SetPanicOnFault(true)
}

// Guard runs fn with fault interception active for the calling thread.
// If fn (or anything it calls) triggers an address fault:
//   - and the address belongs to some registered LSA, Guard terminates
//     only the calling thread via runtime.Goexit; every other thread and
//     the process itself continue running;
//   - otherwise, the panic is re-raised unchanged (an unmatched address
//     fault is logged first), so the process dies with its normal,
//     un-intercepted trap semantics.
//
// onMatch is called (with the owning tid) before the thread exits, so
// the caller can log a diagnostic or clean up thread-local bookkeeping;
// it must not itself retain control past the current goroutine's stack.
func Guard(reg *registry.Registry, onMatch func(owner registry.TID, addr uintptr), fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		verdict, owner := Classify(r, reg)
		switch verdict {
		case Matched:
			af := r.(addressFault)
			logFaultingInstruction()
			if onMatch != nil {
				onMatch(owner, af.Addr())
			}
			runtime.Goexit()
		default:
			if verdict == Unmatched {
				diag.FaultVerdict(false, r.(addressFault).Addr(), 0)
			}
			panic(r)
		}
	}()
	fn()
}

// logFaultingInstruction best-effort disassembles the instruction that
// triggered the recovered fault and logs it. runtime.errorAddressString
// carries the faulting data address but no program counter, so the PC
// is recovered separately from the still-live panic stack; a bad PC or
// undecodable bytes are swallowed, since this is diagnostics only and
// must never affect the fault verdict.
func logFaultingInstruction() {
	defer func() { recover() }()

	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return
	}
	code := diag.ReadCode(pcs[0], 16)
	if code == nil {
		return
	}
	if asm := diag.DisassembleAt(code); asm != "" {
		diag.FaultInstruction(asm)
	}
}
