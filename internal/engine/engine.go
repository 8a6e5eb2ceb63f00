// Package engine holds the single process-wide value the rest of this
// module depends on: the thread registry, created lazily on first use
// and never exposed directly outside this package and lsa's entry
// points.
//
// biscuit initializes its globals with a plain bool flag checked and
// set under the kernel's own coarse locking. This module instead uses
// golang.org/x/sync/singleflight, already an indirect dependency of
// biscuit's own go.mod: concurrent first calls from multiple threads
// collapse into exactly one initializer invocation rather than racing a
// bare sync.Once's fast path.
package engine

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"lsa/internal/registry"
)

// Engine is the process-wide state: just the thread registry. The page
// size is discovered once at program load by the page package itself
// (page.Size); nothing else needs lazy initialization.
type Engine struct {
	Registry *registry.Registry
}

var (
	instance atomic.Pointer[Engine]
	initOnce singleflight.Group
)

// Get returns the process-wide Engine, creating it on the first call
// from any thread. Every lsa API operation calls this before touching
// the registry.
func Get() *Engine {
	if e := instance.Load(); e != nil {
		return e
	}
	v, _, _ := initOnce.Do("init", func() (any, error) {
		if e := instance.Load(); e != nil {
			return e, nil
		}
		e := &Engine{Registry: registry.New()}
		instance.Store(e)
		return e, nil
	})
	return v.(*Engine)
}
