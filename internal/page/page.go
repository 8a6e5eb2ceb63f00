// Package page manages the OS-page-granular mappings that back an LSA.
//
// A Page owns exactly one anonymous, private mmap of the host's page
// size. It is born with no access permissions and carries a reference
// count: while the count is 1 the page is exclusively owned by a single
// LSA descriptor slot; while it is greater than 1 the page is shared
// read-only-from-the-user's-perspective across descriptors, and any
// writer must split it first (see the descriptor package's CoW path).
package page

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Size is the host's page size, discovered once when this package is
// loaded so every Page agrees on the same granularity.
var Size = unix.Getpagesize()

// Page is one OS-page-sized anonymous mapping with a reference count.
type Page struct {
	data      []byte
	refCount  int32
	protected bool
}

// New allocates a fresh, fully protected page with a reference count of 1.
func New() (*Page, error) {
	b, err := unix.Mmap(-1, 0, Size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("page: mmap: %w", err)
	}
	return &Page{data: b, refCount: 1, protected: true}, nil
}

// Addr returns the page-aligned base address of the backing mapping.
func (p *Page) Addr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p.data)))
}

// Bytes returns the page's backing slice. Callers must only read or
// write it while the page has been Unprotect-ed; page itself does not
// enforce that discipline, which is the caller's (the descriptor
// package's) responsibility.
func (p *Page) Bytes() []byte {
	return p.data
}

// Protect strips all access from the page, re-arming the OS-enforced
// boundary that makes direct access from outside the API fault.
func (p *Page) Protect() error {
	if err := unix.Mprotect(p.data, unix.PROT_NONE); err != nil {
		return fmt.Errorf("page: mprotect(none): %w", err)
	}
	p.protected = true
	return nil
}

// Unprotect grants read+write access, opening the narrow window Read
// and Write operate within.
func (p *Page) Unprotect() error {
	if err := unix.Mprotect(p.data, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("page: mprotect(rw): %w", err)
	}
	p.protected = false
	return nil
}

// Protected reports whether the page currently carries no access
// permissions (the state Read/Write must restore before returning).
func (p *Page) Protected() bool {
	return p.protected
}

// RefCount reports the current reference count.
func (p *Page) RefCount() int32 {
	return atomic.LoadInt32(&p.refCount)
}

// Retain increments the reference count, used by Clone when a new
// descriptor starts sharing this page.
func (p *Page) Retain() {
	c := atomic.AddInt32(&p.refCount, 1)
	if c <= 1 {
		panic("page: retain of a dead page")
	}
}

// Release decrements the reference count and, if it reaches zero, unmaps
// the page. It reports whether the page was destroyed.
func (p *Page) Release() (bool, error) {
	c := atomic.AddInt32(&p.refCount, -1)
	if c < 0 {
		panic("page: negative reference count")
	}
	if c > 0 {
		return false, nil
	}
	if err := unix.Munmap(p.data); err != nil {
		return true, fmt.Errorf("page: munmap: %w", err)
	}
	p.data = nil
	return true, nil
}

// Clone allocates a fresh exclusive page and copies src's bytes into it.
// Used by the CoW write path when a shared page must be split. The new
// page is returned unprotected; the caller reprotects per its own
// window discipline. src is left fully protected again before Clone
// returns: once the split is done, src drops out of the splitting
// descriptor's page list entirely, so nothing else will reprotect it on
// that descriptor's behalf — Clone must restore src's own protection
// itself rather than leave it open to direct access from any thread.
func Clone(src *Page) (*Page, error) {
	np, err := New()
	if err != nil {
		return nil, err
	}
	if err := np.Unprotect(); err != nil {
		np.Release()
		return nil, err
	}
	if err := src.Unprotect(); err != nil {
		np.Release()
		return nil, err
	}
	copy(np.data, src.data)
	if err := src.Protect(); err != nil {
		np.Release()
		return nil, err
	}
	return np, nil
}
