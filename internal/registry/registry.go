// Package registry implements the process-wide thread-to-LSA mapping.
//
// It is adapted from two biscuit packages: the chained-bucket layout of
// biscuit's hashtable.Hashtable_t, and the per-thread note bookkeeping of
// biscuit's tinfo.Threadinfo_t/Tnote_t. Unlike biscuit's hashtable, which
// is deliberately lock-free on the read path, this registry is guarded
// by a single process-wide mutex: insert/remove/lookup must be
// serialized against each other and against the fault path's scans, and
// this module's fault path (see internal/fault) runs as ordinary
// recovered Go code rather than a restricted signal handler, so taking a
// plain mutex from it is safe.
package registry

import (
	"sync"
)

// TID is a stable, comparable thread identity, derived by callers from
// unix.Gettid() while locked to an OS thread.
type TID int32

// Pages is the minimal view of an LSA descriptor the registry and the
// fault path need: its ordered list of page base addresses. The
// descriptor package's *Descriptor satisfies this.
type Pages interface {
	PageAddrs() []uintptr
}

type entry struct {
	tid   TID
	value Pages
	next  *entry
}

const bucketCount = 64

// Registry maps thread identities to LSA descriptors.
type Registry struct {
	mu      sync.Mutex
	buckets [bucketCount]*entry
	size    int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

func bucketFor(tid TID) int {
	h := uint32(tid)
	h *= 2654435761
	return int(h % bucketCount)
}

// Insert adds tid -> value. It panics if tid already has an entry; the
// API surface must only call Insert after confirming absence (Create,
// Clone check preconditions via Lookup-then-Insert, matching biscuit's
// hashtable_i contract of insert never overwriting).
func (r *Registry) Insert(tid TID, value Pages) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := bucketFor(tid)
	for e := r.buckets[b]; e != nil; e = e.next {
		if e.tid == tid {
			panic("registry: insert of already-registered thread")
		}
	}
	r.buckets[b] = &entry{tid: tid, value: value, next: r.buckets[b]}
	r.size++
}

// Lookup returns the descriptor registered for tid, if any.
func (r *Registry) Lookup(tid TID) (Pages, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.buckets[bucketFor(tid)]; e != nil; e = e.next {
		if e.tid == tid {
			return e.value, true
		}
	}
	return nil, false
}

// Remove deletes tid's entry, if any.
func (r *Registry) Remove(tid TID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := bucketFor(tid)
	var prev *entry
	for e := r.buckets[b]; e != nil; e = e.next {
		if e.tid == tid {
			if prev == nil {
				r.buckets[b] = e.next
			} else {
				prev.next = e.next
			}
			r.size--
			return
		}
		prev = e
	}
}

// Size reports the number of registered threads.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Each calls f once for every registered (tid, value) pair. f must not
// call back into the registry; Each holds the registry lock for its
// duration.
func (r *Registry) Each(f func(tid TID, v Pages)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, head := range r.buckets {
		for e := head; e != nil; e = e.next {
			f(e.tid, e.value)
		}
	}
}

// FindOwner scans every registered descriptor's pages for one whose base
// address equals base, the page-aligned faulting address. It is used
// only by the fault interceptor (internal/fault), which must consider
// every descriptor in the process, not only the faulting thread's own:
// a thread touching another thread's LSA must also be killed. It
// returns the owning thread's tid and whether a match was found.
func (r *Registry) FindOwner(base uintptr) (TID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, head := range r.buckets {
		for e := head; e != nil; e = e.next {
			for _, a := range e.value.PageAddrs() {
				if a == base {
					return e.tid, true
				}
			}
		}
	}
	return 0, false
}
