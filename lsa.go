// Package lsa implements Local Storage Areas: per-thread, page-granular,
// memory-protected byte regions that can be read, written, and cloned
// between threads with copy-on-write sharing.
//
// An LSA is allocated by a thread for itself with Create, is invisible
// to every other thread through ordinary memory access because its
// backing pages carry no OS page-table permissions outside the narrow
// windows Read and Write open, and is mutated only through this
// package's five operations: Create, Destroy, Read, Write, Clone.
//
// Every call to these five operations, and every direct access to LSA
// memory that must be caught and punished, happens on behalf of one
// "thread" — in this implementation, a goroutine running inside Run,
// locked to one OS thread for the duration. See SPEC_FULL.md §4 for the
// rationale behind that choice.
package lsa

import (
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"lsa/internal/descriptor"
	"lsa/internal/diag"
	"lsa/internal/engine"
	"lsa/internal/fault"
	"lsa/internal/registry"
)

// ThreadID is a stable, comparable thread identity, valid for the
// lifetime of the Run call that produced it.
type ThreadID = registry.TID

// Errors returned by the five API operations. Precondition failures and
// resource-exhaustion failures surface as one of these; an
// invariant-protecting trap never returns an error at all — see Run and
// internal/fault.
var (
	ErrAlreadyOwned      = errors.New("lsa: calling thread already owns an LSA")
	ErrNotOwned          = errors.New("lsa: calling thread owns no LSA")
	ErrZeroSize          = errors.New("lsa: size must be greater than zero")
	ErrOutOfRange        = errors.New("lsa: offset+length exceeds LSA size")
	ErrNoSuchThread      = errors.New("lsa: target thread has no LSA")
	ErrResourceExhausted = errors.New("lsa: allocation or mapping failed")
	ErrNotRunning        = errors.New("lsa: must be called from inside Run")
	ErrAlreadyRunning    = errors.New("lsa: this OS thread is already inside Run")
)

var (
	activeMu sync.Mutex
	active   = map[ThreadID]bool{}
)

// currentTID reports this goroutine's OS thread id and whether it is
// currently inside Run. Valid only to call from inside Run, after
// LockOSThread, where Gettid is stable.
func currentTID() (ThreadID, bool) {
	tid := ThreadID(unix.Gettid())
	activeMu.Lock()
	ok := active[tid]
	activeMu.Unlock()
	return tid, ok
}

// CurrentThread returns the calling thread's id, for passing to another
// thread's Clone call. It reports false if called outside Run.
func CurrentThread() (ThreadID, bool) {
	return currentTID()
}

// Run is this module's thread entry point: it locks the calling
// goroutine to its OS thread, derives a stable ThreadID from it, enables
// fault interception for it, and runs fn under the fault interceptor.
// All of a logical thread's Create/Destroy/Read/Write/Clone calls must
// happen inside one Run call; Run must not be called again from a
// goroutine already inside one (it returns ErrAlreadyRunning without
// running fn).
//
// If fn or anything it calls directly dereferences another thread's (or
// its own) protected LSA memory outside Read/Write, Run does not return:
// the calling goroutine is terminated via runtime.Goexit from inside the
// fault interceptor and its OS thread is retired, while the rest of the
// process continues.
func Run(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := ThreadID(unix.Gettid())

	activeMu.Lock()
	if active[tid] {
		activeMu.Unlock()
		return ErrAlreadyRunning
	}
	active[tid] = true
	activeMu.Unlock()
	defer func() {
		activeMu.Lock()
		delete(active, tid)
		activeMu.Unlock()
	}()

	fault.Enable()

	eng := engine.Get()
	var result error
	fault.Guard(eng.Registry, func(owner registry.TID, addr uintptr) {
		diag.FaultVerdict(true, addr, int32(owner))
		// Left unbalanced: the deferred UnlockOSThread above still runs
		// during Goexit, and this extra lock keeps the goroutine locked
		// when it exits, so the runtime retires its OS thread.
		runtime.LockOSThread()
	}, func() {
		result = fn()
	})
	return result
}

// Create allocates an LSA of size bytes for the calling thread. It fails
// if the calling thread already owns one, if size is zero, or if any
// page allocation fails; on success the caller is registered and every
// page is fully protected.
func Create(size int) error {
	tid, ok := currentTID()
	if !ok {
		return ErrNotRunning
	}
	eng := engine.Get()
	if _, exists := eng.Registry.Lookup(tid); exists {
		return ErrAlreadyOwned
	}

	// descriptor.New's pages are born with page.New's PROT_NONE mapping
	// and are never unprotected here, satisfying "pages are all fully
	// protected at return" without a separate step.
	d, err := descriptor.New(size)
	if err != nil {
		return translate(err)
	}
	eng.Registry.Insert(tid, d)
	return nil
}

// Destroy releases the calling thread's LSA. It fails if the calling
// thread owns no LSA.
func Destroy() error {
	tid, ok := currentTID()
	if !ok {
		return ErrNotRunning
	}
	eng := engine.Get()
	v, exists := eng.Registry.Lookup(tid)
	if !exists {
		return ErrNotOwned
	}
	d := v.(*descriptor.Descriptor)
	eng.Registry.Remove(tid)
	if err := d.Destroy(); err != nil {
		return ErrResourceExhausted
	}
	return nil
}

// Read copies length bytes starting at off from the calling thread's LSA
// into out. It fails if the calling thread owns no LSA or if
// off+length exceeds the LSA's size.
func Read(off, length int, out []byte) error {
	tid, ok := currentTID()
	if !ok {
		return ErrNotRunning
	}
	eng := engine.Get()
	v, exists := eng.Registry.Lookup(tid)
	if !exists {
		return ErrNotOwned
	}
	d := v.(*descriptor.Descriptor)
	return translate(d.Read(off, length, out))
}

// Write copies length bytes from in into the calling thread's LSA
// starting at off, splitting any shared page the range touches. Same
// preconditions as Read.
func Write(off, length int, in []byte) error {
	tid, ok := currentTID()
	if !ok {
		return ErrNotRunning
	}
	eng := engine.Get()
	v, exists := eng.Registry.Lookup(tid)
	if !exists {
		return ErrNotOwned
	}
	d := v.(*descriptor.Descriptor)
	return translate(d.Write(off, length, in))
}

// Clone registers a new LSA for the calling thread that shares every
// page of target's LSA. It fails if the calling thread already owns an
// LSA or if target has none registered. After Clone, both threads see
// identical bytes until either writes, which splits only the pages it
// touches.
func Clone(target ThreadID) error {
	tid, ok := currentTID()
	if !ok {
		return ErrNotRunning
	}
	eng := engine.Get()
	if _, exists := eng.Registry.Lookup(tid); exists {
		return ErrAlreadyOwned
	}
	v, exists := eng.Registry.Lookup(target)
	if !exists {
		return ErrNoSuchThread
	}
	src := v.(*descriptor.Descriptor)
	clone := descriptor.Clone(src)
	eng.Registry.Insert(tid, clone)
	return nil
}

// Stats returns a snapshot of every currently registered LSA's owning
// thread and byte size, suitable for diag.Snapshot/diag.WriteSnapshot.
// It is the only operation in this package that does not require the
// calling thread itself to be inside Run or to own an LSA: it is meant
// for a host program's monitoring path, not for thread-local use.
func Stats() []diag.DescriptorStat {
	eng := engine.Get()
	var out []diag.DescriptorStat
	eng.Registry.Each(func(tid registry.TID, v registry.Pages) {
		d := v.(*descriptor.Descriptor)
		out = append(out, diag.DescriptorStat{TID: int32(tid), Size: int64(d.Size())})
	})
	return out
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, descriptor.ErrZeroSize):
		return ErrZeroSize
	case errors.Is(err, descriptor.ErrOutOfRange):
		return ErrOutOfRange
	case errors.Is(err, descriptor.ErrNoSuchThread):
		return ErrNoSuchThread
	default:
		return ErrResourceExhausted
	}
}
