package fault

import (
	"testing"

	"lsa/internal/page"
	"lsa/internal/registry"
)

type fakeAddrFault struct{ addr uintptr }

func (f fakeAddrFault) Error() string   { return "fake address fault" }
func (f fakeAddrFault) RuntimeError()   {}
func (f fakeAddrFault) Addr() uintptr   { return f.addr }

type fakePages []uintptr

func (f fakePages) PageAddrs() []uintptr { return []uintptr(f) }

func TestClassifyMatched(t *testing.T) {
	reg := registry.New()
	base := uintptr(0x1000 * uintptr(page.Size))
	reg.Insert(7, fakePages{base})

	verdict, owner := Classify(fakeAddrFault{addr: base + 4}, reg)
	if verdict != Matched {
		t.Fatalf("expected Matched; got %v", verdict)
	}
	if owner != 7 {
		t.Fatalf("expected owner tid 7; got %d", owner)
	}
}

func TestClassifyUnmatched(t *testing.T) {
	reg := registry.New()
	reg.Insert(7, fakePages{0x2000})

	verdict, _ := Classify(fakeAddrFault{addr: 0xDEAD0000}, reg)
	if verdict != Unmatched {
		t.Fatalf("expected Unmatched; got %v", verdict)
	}
}

func TestClassifyNotAFault(t *testing.T) {
	reg := registry.New()
	verdict, _ := Classify("plain string panic", reg)
	if verdict != NotAFault {
		t.Fatalf("expected NotAFault; got %v", verdict)
	}
}

func TestGuardTerminatesOnlyOnMatch(t *testing.T) {
	reg := registry.New()
	base := uintptr(0x3000 * uintptr(page.Size))
	reg.Insert(9, fakePages{base})

	var matchedOwner registry.TID
	done := make(chan struct{})
	go func() {
		defer close(done)
		Guard(reg, func(owner registry.TID, addr uintptr) {
			matchedOwner = owner
		}, func() {
			panic(fakeAddrFault{addr: base})
		})
	}()
	<-done

	if matchedOwner != 9 {
		t.Fatalf("expected onMatch called with tid 9; got %d", matchedOwner)
	}
}

func TestGuardRepanicsOnUnmatched(t *testing.T) {
	reg := registry.New()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected unmatched fault to propagate")
		}
	}()
	Guard(reg, nil, func() {
		panic(fakeAddrFault{addr: 0xBAD})
	})
}
