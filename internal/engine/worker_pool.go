package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// job is a payload tagged with its submission order.
type job[T any] struct {
	seq     int
	payload T
}

// workerPool runs fn over submitted payloads on n goroutines. Each finished
// job is handed to done with its sequence number; done runs on the worker
// goroutine, so it must be safe for concurrent use.
type workerPool[T, R any] struct {
	queue   chan job[T]
	process func(ctx context.Context, t T) (R, error)
	done    func(seq int, t T, r R, err error)
	next    atomic.Int64
	busy    atomic.Int64
	wg      sync.WaitGroup
}

func newWorkerPool[T, R any](ctx context.Context, n, depth int, fn func(context.Context, T) (R, error), done func(int, T, R, error)) *workerPool[T, R] {
	if n < 1 {
		n = 1
	}
	if depth < 1 {
		depth = 1
	}
	p := &workerPool[T, R]{
		queue:   make(chan job[T], depth),
		process: fn,
		done:    done,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.run(ctx)
	}
	return p
}

func (p *workerPool[T, R]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.busy.Add(1)
			r, err := p.process(ctx, j.payload)
			p.busy.Add(-1)
			if p.done != nil {
				p.done(j.seq, j.payload, r, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues t, blocking for queue space until ctx ends. It returns
// the job's sequence number.
func (p *workerPool[T, R]) Submit(ctx context.Context, t T) (int, error) {
	seq := int(p.next.Add(1)) - 1
	select {
	case p.queue <- job[T]{seq: seq, payload: t}:
		return seq, nil
	case <-ctx.Done():
		return seq, ctx.Err()
	}
}

// Drain closes the queue and waits for the workers to exit. Jobs still
// queued when the pool's context ends are dropped.
func (p *workerPool[T, R]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

// Utilization is the fraction of queue slots in use.
func (p *workerPool[T, R]) Utilization() float64 {
	return float64(len(p.queue)) / float64(cap(p.queue))
}

// Busy is the number of jobs being processed right now.
func (p *workerPool[T, R]) Busy() int { return int(p.busy.Load()) }
