package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Keyed_Mutex_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("group-a")
			counter++
			locks.Unlock("group-a")
		}()
	}
	wg.Wait()

	req.Equal(32, counter)
}

func Test_Keyed_Mutex_Reclaims_Idle_Entries(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 50; j++ {
				locks.Lock(key)
				locks.Unlock(key)
			}
		}(i)
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	req.Empty(locks.locks)
}

func Test_Keyed_Mutex_Keeps_Entry_While_Contended(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	locks.Lock("group-a")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("group-a")
		locks.Unlock("group-a")
		close(acquired)
	}()

	// Wait for the second locker to register as a waiter.
	req.Eventually(func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		entry, ok := locks.locks["group-a"]
		return ok && entry.refs == 2
	}, time.Second, time.Millisecond)

	locks.Unlock("group-a")
	<-acquired

	locks.mu.Lock()
	defer locks.mu.Unlock()
	req.Empty(locks.locks)
}
