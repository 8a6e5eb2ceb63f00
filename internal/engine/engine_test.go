package engine

import (
	"sync"
	"testing"
)

func TestGetReturnsSameInstance(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatalf("Get returned different instances: %p != %p", a, b)
	}
}

func TestGetConcurrentCallersAgree(t *testing.T) {
	const n = 32
	results := make([]*Engine, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = Get()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent Get calls disagreed on the instance")
		}
	}
}
