// Command lsademo exercises the lsa package end to end: one thread
// creates and writes an LSA, a second thread clones it and diverges it,
// and both threads' final views are printed.
package main

import (
	"bytes"
	"fmt"
	"log"
	"sync"

	"lsa"
	"lsa/internal/diag"
)

func main() {
	var owner lsa.ThreadID
	ownerReady := make(chan struct{})
	ownerDone := make(chan struct{})
	var finalStats []diag.DescriptorStat

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := lsa.Run(func() error {
			if err := lsa.Create(4096); err != nil {
				return fmt.Errorf("owner create: %w", err)
			}
			defer lsa.Destroy()

			if err := lsa.Write(0, 5, []byte("hello")); err != nil {
				return fmt.Errorf("owner write: %w", err)
			}

			tid, ok := lsa.CurrentThread()
			if ok {
				owner = tid
			}
			close(ownerReady)
			<-ownerDone

			out := make([]byte, 5)
			if err := lsa.Read(0, 5, out); err != nil {
				return fmt.Errorf("owner read: %w", err)
			}
			log.Printf("owner final view: %q", out)
			return nil
		})
		if err != nil {
			log.Printf("owner thread: %v", err)
		}
	}()

	<-ownerReady

	go func() {
		defer wg.Done()
		err := lsa.Run(func() error {
			if err := lsa.Clone(owner); err != nil {
				return fmt.Errorf("clone: %w", err)
			}
			defer lsa.Destroy()

			before := make([]byte, 5)
			if err := lsa.Read(0, 5, before); err != nil {
				return fmt.Errorf("clone read before write: %w", err)
			}
			log.Printf("clone sees before divergence: %q", before)

			if err := lsa.Write(0, 1, []byte("J")); err != nil {
				return fmt.Errorf("clone write: %w", err)
			}

			after := make([]byte, 5)
			if err := lsa.Read(0, 5, after); err != nil {
				return fmt.Errorf("clone read after write: %w", err)
			}
			log.Printf("clone sees after divergence: %q", after)

			// Snapshot the population while both the clone's and the
			// owner's LSAs are still registered, before either Destroy
			// runs.
			finalStats = lsa.Stats()
			close(ownerDone)
			return nil
		})
		if err != nil {
			log.Printf("clone thread: %v", err)
		}
	}()

	wg.Wait()

	for _, s := range finalStats {
		log.Printf("final population: thread %d owns %d bytes", s.TID, s.Size)
	}

	var profile bytes.Buffer
	if err := diag.WriteSnapshot(&profile, finalStats); err != nil {
		log.Printf("snapshot: %v", err)
	} else {
		log.Printf("wrote %d-byte pprof snapshot of the LSA population", profile.Len())
	}
}
