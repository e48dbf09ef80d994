package fs

import (
	"sync"
	"testing"
	"time"
)

func TestPathLocker_SerializesSameKey(t *testing.T) {
	l := NewPathLocker()
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("/links/TEXT/a.txt")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if n := l.Len(); n != 0 {
		t.Errorf("Len() after release = %d, want 0", n)
	}
}

func TestPathLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewPathLocker()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock(b) blocked while a was held")
	}
}
