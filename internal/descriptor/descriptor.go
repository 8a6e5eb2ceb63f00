// Package descriptor implements the LSA descriptor: an ordered array of
// pages plus the byte size it exposes, and the read/write/clone
// algorithms that operate on it.
//
// Grounded on biscuit's vm.Vm_t address-space type (biscuit/src/vm/as.go)
// and its copy-on-write page-fault path (vm.Sys_pgfault): the same
// refcount-read-then-branch discriminant (shared vs. exclusive) drives
// the write-path CoW split here, generalized from a page-table PTE flag
// (PTE_COW) to an explicit Page reference count.
package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"lsa/internal/align"
	"lsa/internal/diag"
	"lsa/internal/page"
)

// Errors of the descriptor package. New returns ErrZeroSize and
// Read/Write return ErrOutOfRange; no operation here returns
// ErrNoSuchThread. The lsa package maps these onto its own exported
// sentinels; they are not part of this module's public surface.
var (
	ErrZeroSize     = errors.New("descriptor: size must be greater than zero")
	ErrOutOfRange   = errors.New("descriptor: offset+length exceeds size")
	ErrNoSuchThread = errors.New("descriptor: no such thread")
)

// Descriptor is one LSA: a thread's private view of a sequence of pages.
type Descriptor struct {
	// mu serializes CoW read-check-act sequences on this descriptor's
	// own pages against concurrent Clone/Destroy of the same descriptor:
	// checking a page's refcount and deciding whether to split it must
	// not race another goroutine doing the same.
	mu    sync.Mutex
	size  int
	pages []*page.Page
}

// New allocates a descriptor exposing size bytes. size must be positive.
// Partial allocation failure rolls back every page allocated so far.
func New(size int) (*Descriptor, error) {
	if size <= 0 {
		return nil, ErrZeroSize
	}
	n := align.PageCount(size, page.Size)
	pages := make([]*page.Page, 0, n)
	for i := 0; i < n; i++ {
		p, err := page.New()
		if err != nil {
			for _, rb := range pages {
				rb.Release()
			}
			return nil, fmt.Errorf("descriptor: allocating page %d/%d: %w", i, n, err)
		}
		pages = append(pages, p)
	}
	return &Descriptor{size: size, pages: pages}, nil
}

// Clone allocates a new descriptor of the same size as src, sharing
// src's pages by reference and bumping each one's reference count.
// src and the returned descriptor are independent after this call: each
// may CoW-split pages on write without affecting the other.
func Clone(src *Descriptor) *Descriptor {
	src.mu.Lock()
	defer src.mu.Unlock()

	pages := make([]*page.Page, len(src.pages))
	for i, p := range src.pages {
		p.Retain()
		pages[i] = p
	}
	return &Descriptor{size: src.size, pages: pages}
}

// Size returns the descriptor's user-visible byte size.
func (d *Descriptor) Size() int {
	return d.size
}

// PageAddrs returns the base address of every page this descriptor
// references. Implements registry.Pages for the fault interceptor scan.
func (d *Descriptor) PageAddrs() []uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()

	addrs := make([]uintptr, len(d.pages))
	for i, p := range d.pages {
		addrs[i] = p.Addr()
	}
	return addrs
}

func (d *Descriptor) checkRange(off, length int) error {
	if off < 0 || length < 0 {
		return ErrOutOfRange
	}
	// off+length may overflow; compare without adding first.
	if off > d.size || length > d.size-off {
		return ErrOutOfRange
	}
	return nil
}

// Read copies length bytes starting at off into out. The read window is
// not CoW-sensitive: shared pages are read in place, no page is
// allocated or split.
func (d *Descriptor) Read(off, length int, out []byte) error {
	if err := d.checkRange(off, length); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pages {
		if err := p.Unprotect(); err != nil {
			d.reprotectBestEffort()
			return err
		}
	}

	remaining := length
	pos := off
	outPos := 0
	for remaining > 0 {
		idx, intra := align.Split(pos, page.Size)
		n := page.Size - intra
		if n > remaining {
			n = remaining
		}
		copy(out[outPos:outPos+n], d.pages[idx].Bytes()[intra:intra+n])
		pos += n
		outPos += n
		remaining -= n
	}

	return d.reprotectAll()
}

// Write copies length bytes from in into the descriptor starting at
// off, splitting any shared page the range touches into a private copy
// before writing to it. A single call may trigger zero, one, or
// multiple splits — exactly one per affected shared page.
func (d *Descriptor) Write(off, length int, in []byte) error {
	if err := d.checkRange(off, length); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pages {
		if err := p.Unprotect(); err != nil {
			d.reprotectBestEffort()
			return err
		}
	}

	remaining := length
	pos := off
	inPos := 0
	lastIdx := -1
	for remaining > 0 {
		idx, intra := align.Split(pos, page.Size)
		if idx != lastIdx {
			if err := d.splitIfShared(idx); err != nil {
				// Pages already split remain split; that's an
				// acceptable partial state, not rolled back.
				d.reprotectBestEffort()
				return err
			}
			lastIdx = idx
		}
		n := page.Size - intra
		if n > remaining {
			n = remaining
		}
		copy(d.pages[idx].Bytes()[intra:intra+n], in[inPos:inPos+n])
		pos += n
		inPos += n
		remaining -= n
	}

	return d.reprotectAll()
}

// splitIfShared evaluates the CoW condition for pages[idx]: if it is
// currently shared (refcount > 1), it is replaced in-slot with a fresh
// exclusive copy and the old page's reference count is dropped. The
// check and the replacement happen while d.mu is held, so a concurrent
// Clone cannot observe or create a torn refcount decision.
func (d *Descriptor) splitIfShared(idx int) error {
	old := d.pages[idx]
	if old.RefCount() <= 1 {
		return nil
	}
	np, err := page.Clone(old)
	if err != nil {
		return fmt.Errorf("descriptor: cow split of page %d: %w", idx, err)
	}
	d.pages[idx] = np
	old.Release()
	diag.CoWSplit(idx)
	return nil
}

func (d *Descriptor) reprotectAll() error {
	var first error
	for _, p := range d.pages {
		if err := p.Protect(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// reprotectBestEffort restores protection on every page after a
// mid-operation failure, ignoring further errors: the operation is
// already failing and a reprotection fault here must not mask the
// original error.
func (d *Descriptor) reprotectBestEffort() {
	for _, p := range d.pages {
		p.Protect()
	}
}

// Destroy releases every page this descriptor references: pages whose
// refcount reaches zero are unmapped, pages still shared with another
// descriptor simply have their count decremented.
func (d *Descriptor) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for _, p := range d.pages {
		if _, err := p.Release(); err != nil && first == nil {
			first = err
		}
	}
	d.pages = nil
	return first
}
