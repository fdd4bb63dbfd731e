package app

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	keys := []string{"x", "y"}
	var counters [2]int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for slot, key := range keys {
			wg.Add(1)
			go func(slot int, key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				counters[slot]++
				unlock()
			}(slot, key)
		}
	}
	wg.Wait()

	if counters[0] != 50 || counters[1] != 50 {
		t.Fatalf("counters diverged: %v", counters)
	}
}

func TestKeyedMutexLockAllOrdersKeys(t *testing.T) {
	km := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		keys := []string{"a", "b"}
		if i%2 == 1 {
			keys = []string{"b", "a"}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock := km.LockAll(keys...)
			unlock()
		}(keys)
	}
	// Deadlocks here hit the test timeout.
	wg.Wait()
}

func TestKeyedMutexLockAllDedups(t *testing.T) {
	km := newKeyedMutex()
	unlock := km.LockAll("a", "a", "a")
	unlock()

	// The lock must be fully released and reusable.
	unlock = km.Lock("a")
	unlock()
}
