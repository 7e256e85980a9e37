// Package resources provides admission control for concurrently executing
// build work. A Scheduler holds a fixed multi-dimensional budget (CPU slots,
// memory, disk I/O, network I/O); work acquires its declared cost before
// running and releases it on completion.
//
// The check-and-reserve step is a single critical section, so the running
// total can never exceed the budget in any dimension. Waiters are served in
// strict FIFO order, which makes the queue starvation-free: a large request
// at the head blocks later, smaller ones rather than being skipped forever.
package resources
