// Package worker runs indexed jobs over a bounded set of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
)

// defaultWorkerMultiplier sizes a pool created with size < 1.
const defaultWorkerMultiplier = 2

// Job processes item i. Jobs report their own failures; the pool only
// guarantees each index runs at most once.
type Job func(ctx context.Context, i int)

// Pool bounds how many jobs run at once. A Pool is reusable and safe for
// concurrent Run calls; each call gets its own workers.
type Pool struct {
	size   int
	name   string
	logger logger.Logger

	stopped  atomic.Bool
	inFlight atomic.Int64
}

// NewPool creates a pool of size workers.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		size:   size,
		name:   "worker-pool",
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of jobs currently running.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Run executes job for every index in [0, n) and waits for all of them.
// Indices not yet started when ctx is cancelled are skipped and ctx.Err()
// is returned.
func (p *Pool) Run(ctx context.Context, n int, job Job) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	if n <= 0 {
		return nil
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	workers := min(p.size, n)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id, jobs, job)
		}(w)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

func (p *Pool) work(ctx context.Context, id int, jobs <-chan int, job Job) {
	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.runOne(ctx, id, i, job)
	}
}

func (p *Pool) runOne(ctx context.Context, id, i int, job Job) {
	p.inFlight.Add(1)
	metrics.AddBatchInFlight(1)
	defer func() {
		p.inFlight.Add(-1)
		metrics.AddBatchInFlight(-1)
		if r := recover(); r != nil {
			p.logger.Error(ctx, "job panicked",
				logger.Int("worker_id", id),
				logger.Int("index", i),
				logger.Any("panic", r),
			)
		}
	}()
	job(ctx, i)
}

// Stop rejects further Run calls. Runs already in progress complete.
func (p *Pool) Stop() {
	if p.stopped.CompareAndSwap(false, true) {
		p.logger.Info(context.Background(), "worker pool stopped", logger.Int("size", p.size))
	}
}
