package resources

import (
	"container/list"
	"context"
	"sync"
)

// waiter is a queued admission request. Its channel is closed exactly once,
// under the scheduler mutex, when the reservation has been made.
type waiter struct {
	cost     Amounts
	admitted chan struct{}
}

// Scheduler admits work against a fixed budget. Acquire blocks until the
// requested cost fits alongside everything already running; the returned
// release function gives the reservation back.
type Scheduler struct {
	mu     sync.Mutex
	budget Amounts
	used   Amounts
	queue  *list.List // of *waiter, FIFO
}

// NewScheduler creates a scheduler with the given total budget.
func NewScheduler(budget Amounts) *Scheduler {
	return &Scheduler{budget: budget, queue: list.New()}
}

// Budget returns the scheduler's total budget.
func (s *Scheduler) Budget() Amounts {
	return s.budget
}

// Acquire reserves cost against the budget, blocking while the reservation
// would overcommit any dimension. Requests are admitted strictly in arrival
// order. A cost exceeding the budget in some dimension is capped to the
// budget so it runs (alone in that dimension) instead of deadlocking.
//
// The returned release function is idempotent and must be called when the
// work finishes. If ctx is cancelled while waiting, the queue entry is
// withdrawn and a nil release plus the context error are returned.
func (s *Scheduler) Acquire(ctx context.Context, cost Amounts) (func(), error) {
	cost = cost.Capped(s.budget)

	s.mu.Lock()
	if s.queue.Len() == 0 && s.used.Add(cost).FitsWithin(s.budget) {
		s.used = s.used.Add(cost)
		s.mu.Unlock()
		return s.releaseFunc(cost), nil
	}

	w := &waiter{cost: cost, admitted: make(chan struct{})}
	elem := s.queue.PushBack(w)
	s.mu.Unlock()

	select {
	case <-w.admitted:
		return s.releaseFunc(cost), nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-w.admitted:
			// Admission raced the cancellation; the reservation is already
			// ours, so hand it back before reporting the cancellation.
			s.mu.Unlock()
			s.releaseFunc(cost)()
			return nil, ctx.Err()
		default:
		}
		s.queue.Remove(elem)
		// Removing a waiter can unblock the new queue head.
		s.admitQueuedLocked()
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// releaseFunc builds the idempotent release closure for an admitted cost.
func (s *Scheduler) releaseFunc(cost Amounts) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.used = s.used.Subtract(cost)
			s.admitQueuedLocked()
		})
	}
}

// admitQueuedLocked admits waiters from the queue head while they fit.
// Stopping at the first waiter that does not fit is what keeps the
// discipline FIFO and starvation-free.
func (s *Scheduler) admitQueuedLocked() {
	for s.queue.Len() > 0 {
		head := s.queue.Front()
		w := head.Value.(*waiter)
		if !s.used.Add(w.cost).FitsWithin(s.budget) {
			return
		}
		s.used = s.used.Add(w.cost)
		s.queue.Remove(head)
		close(w.admitted)
	}
}

// Used returns the currently reserved amounts. Intended for telemetry and
// tests, not for admission decisions.
func (s *Scheduler) Used() Amounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
