package resources

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireImmediate(t *testing.T) {
	s := NewScheduler(Amounts{CPU: 4, MemoryMB: 1024, DiskIO: 10, NetworkIO: 10})

	release, err := s.Acquire(context.Background(), Amounts{CPU: 2, MemoryMB: 512})
	require.NoError(t, err)
	assert.Equal(t, Amounts{CPU: 2, MemoryMB: 512}, s.Used())

	release()
	assert.Equal(t, Amounts{}, s.Used())

	// Releasing twice must not corrupt the running total.
	release()
	assert.Equal(t, Amounts{}, s.Used())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := NewScheduler(Amounts{CPU: 1, MemoryMB: 100, DiskIO: 1, NetworkIO: 1})

	first, err := s.Acquire(context.Background(), Amounts{CPU: 1})
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := s.Acquire(context.Background(), Amounts{CPU: 1})
		assert.NoError(t, err)
		defer release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while the budget was full")
	case <-time.After(50 * time.Millisecond):
	}

	first()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never admitted after release")
	}
}

func TestNeverOvercommits(t *testing.T) {
	budget := Amounts{CPU: 4, MemoryMB: 400, DiskIO: 40, NetworkIO: 4}
	s := NewScheduler(budget)

	var running atomic.Int64
	var peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.Acquire(context.Background(), Amounts{CPU: 1, MemoryMB: 100, DiskIO: 10, NetworkIO: 1})
			assert.NoError(t, err)
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			assert.True(t, s.Used().FitsWithin(budget),
				"running total exceeded budget: %s > %s", s.Used(), budget)
			time.Sleep(time.Millisecond)
			running.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, Amounts{}, s.Used())
	assert.LessOrEqual(t, peak.Load(), int64(4), "at most budget/cost workers may run at once")
}

func TestOversizedRequestEventuallyRuns(t *testing.T) {
	budget := Amounts{CPU: 2, MemoryMB: 100, DiskIO: 10, NetworkIO: 10}
	s := NewScheduler(budget)

	small, err := s.Acquire(context.Background(), Amounts{CPU: 1})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		// Larger than the whole budget in two dimensions: capped, not
		// deadlocked.
		release, err := s.Acquire(context.Background(), Amounts{CPU: 64, MemoryMB: 10_000})
		assert.NoError(t, err)
		release()
		close(done)
	}()

	small()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("oversized request deadlocked")
	}
}

func TestFIFOOrdering(t *testing.T) {
	s := NewScheduler(Amounts{CPU: 2, MemoryMB: 100, DiskIO: 10, NetworkIO: 10})

	hold, err := s.Acquire(context.Background(), Amounts{CPU: 2})
	require.NoError(t, err)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	started := make(chan struct{})

	// A large request queued first must not be starved by the smaller one
	// queued after it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		release, err := s.Acquire(context.Background(), Amounts{CPU: 2})
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		release()
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the large request reach the queue

	wg.Add(1)
	go func() {
		defer wg.Done()
		release, err := s.Acquire(context.Background(), Amounts{CPU: 1})
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		release()
	}()
	time.Sleep(20 * time.Millisecond)

	hold()
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, 1, order[0], "head-of-queue request must be admitted first")
}

func TestAcquireCancellation(t *testing.T) {
	s := NewScheduler(Amounts{CPU: 1, MemoryMB: 10, DiskIO: 1, NetworkIO: 1})

	hold, err := s.Acquire(context.Background(), Amounts{CPU: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Acquire(ctx, Amounts{CPU: 1})
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire never returned")
	}

	// The cancelled waiter must not leave a phantom reservation behind.
	hold()
	assert.Equal(t, Amounts{}, s.Used())

	release, err := s.Acquire(context.Background(), Amounts{CPU: 1})
	require.NoError(t, err)
	release()
}
