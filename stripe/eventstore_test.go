package stripe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestEventStore(t *testing.T) {
	c := qt.New(t)

	store := NewEventStore(2, time.Hour)
	c.Assert(store.EventExists("evt_1"), qt.IsFalse)
	store.MarkProcessed("evt_1")
	store.MarkProcessed("evt_2")
	c.Assert(store.EventExists("evt_1"), qt.IsTrue)

	// the oldest event is evicted once the store is full
	store.MarkProcessed("evt_3")
	c.Assert(store.Size(), qt.Equals, 2)
	c.Assert(store.EventExists("evt_1"), qt.IsFalse)
	c.Assert(store.EventExists("evt_3"), qt.IsTrue)

	short := NewEventStore(10, 50*time.Millisecond)
	short.MarkProcessed("evt_1")
	time.Sleep(200 * time.Millisecond)
	c.Assert(short.EventExists("evt_1"), qt.IsFalse)
}

func TestLockManager(t *testing.T) {
	c := qt.New(t)
	lm := NewLockManager()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lm.LockUser("user")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	c.Assert(counter, qt.Equals, 50)

	for i := 0; i < 5; i++ {
		lm.LockUser(fmt.Sprintf("user-%d", i))()
	}
	held := lm.LockUser("held")
	c.Assert(lm.Len(), qt.Equals, 1)

	// a waiter keeps the entry alive after the holder releases it, so the
	// next caller can't get a second lock for the same user
	acquired := make(chan func())
	go func() { acquired <- lm.LockUser("held") }()
	for {
		lm.mu.Lock()
		refs := lm.locks["held"].refs
		lm.mu.Unlock()
		if refs == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	held()
	second := <-acquired
	c.Assert(lm.Len(), qt.Equals, 1)
	third := make(chan struct{})
	go func() {
		lm.LockUser("held")()
		close(third)
	}()
	select {
	case <-third:
		c.Fatal("lock acquired twice")
	case <-time.After(50 * time.Millisecond):
	}
	second()
	<-third
	c.Assert(lm.Len(), qt.Equals, 0)
}
