package history

import (
	"context"
	"sync"
)

// task is a unit of work run on the worker goroutine.
type task func(ctx context.Context)

// workQueue runs tasks one at a time, in submission order, on a single
// goroutine. Submission never blocks.
type workQueue struct {
	mu      sync.Mutex
	pending []task
	closed  bool

	wake    chan struct{}
	stopped chan struct{}
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// submit queues t. It returns false once the queue is closed.
func (q *workQueue) submit(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// do queues fn and waits for its result or for ctx to end. When ctx ends
// first the task still runs; only the wait is abandoned.
func (q *workQueue) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := doValue(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// doValue is do for a task that produces a value. The value travels with
// the error, so an abandoned wait never reads what the task is writing.
func doValue[T any](ctx context.Context, q *workQueue, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	var zero T
	done := make(chan result, 1)
	if !q.submit(func(context.Context) {
		v, err := fn(ctx)
		done <- result{v, err}
	}) {
		return zero, ErrClosed
	}
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *workQueue) run() {
	defer close(q.stopped)
	ctx := context.Background()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		t(ctx)
	}
}

// close stops accepting tasks, runs what is already queued and waits for
// the worker to exit.
func (q *workQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.stopped
}
