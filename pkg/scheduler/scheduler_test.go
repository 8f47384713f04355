package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowReturnsUTC(t *testing.T) {
	s := New(0)
	defer s.Close()

	now := s.Now()
	assert.Equal(t, time.UTC, now.Location())
}

func TestScheduleRunsWorkAsynchronously(t *testing.T) {
	s := New(0)
	defer s.Close()

	done := make(chan struct{})
	s.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled work never ran")
	}
}

func TestScheduleOrderIsPreservedPerGoroutine(t *testing.T) {
	s := New(0)
	defer s.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		s.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduleAfterWaitsAtLeastTheDelay(t *testing.T) {
	s := New(0)
	defer s.Close()

	start := time.Now()
	done := make(chan struct{})
	s.ScheduleAfter(50*time.Millisecond, func() { close(done) })

	<-done
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSchedulePanicRecoveredWithoutKillingWorker(t *testing.T) {
	s := New(0)
	defer s.Close()

	s.Schedule(func() { panic("boom") })

	var ran int32
	done := make(chan struct{})
	s.Schedule(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after a panicking task")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestCloseIsIdempotentAndDrainsBufferedWork(t *testing.T) {
	s := New(4)

	var n int32
	for i := 0; i < 3; i++ {
		s.Schedule(func() { atomic.AddInt32(&n, 1) })
	}

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.EqualValues(t, 3, atomic.LoadInt32(&n))
}
