package keylock

import (
	"sync"
	"testing"
)

func TestStripedSerialisesSameKey(t *testing.T) {
	locks := New(8)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("item-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestStripedDistinctKeysDoNotDeadlock(t *testing.T) {
	locks := New(0)
	if len(locks.stripes) != DefaultStripes {
		t.Fatalf("stripes = %d, want %d", len(locks.stripes), DefaultStripes)
	}

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		// Same key as held lock must wait; a different stripe must not.
		for _, k := range []string{"b", "c", "d", "e"} {
			if locks.stripe(k) == locks.stripe("a") {
				continue
			}
			unlock := locks.Lock(k)
			unlock()
		}
		close(done)
	}()
	<-done
	unlockA()
}
