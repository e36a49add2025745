package executor

import (
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Executor runs batches of tasks on a bounded number of goroutines. It is
// created once and shared by every phase of a run.
type Executor struct {
	workers int
}

// New returns an executor with the given worker bound; workers <= 0 selects
// the hardware concurrency.
func New(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{workers: workers}
}

func (e *Executor) Workers() int {
	return e.workers
}

// ParallelFor calls fn(i) for every i in [0, n) and blocks until all calls
// return. A panic in any task is re-raised on the caller after the batch
// has drained.
func (e *Executor) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(min(e.workers, n))
	for i := 0; i < n; i++ {
		p.Go(func() {
			fn(i)
		})
	}
	p.Wait()
}

// ParallelForErr is ParallelFor for fallible tasks. Every task runs; the
// returned error joins all task errors.
func (e *Executor) ParallelForErr(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	p := pool.New().WithErrors().WithMaxGoroutines(min(e.workers, n))
	for i := 0; i < n; i++ {
		p.Go(func() error {
			return fn(i)
		})
	}
	return p.Wait()
}
