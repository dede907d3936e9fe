package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"screenmind/api/internal/logger"
	"screenmind/api/internal/metrics"
)

var ErrClosed = errors.New("worker pool closed")

// Pool runs submitted jobs on a fixed set of goroutines so callers (update
// loops, handlers) never block on a provider call.
type Pool struct {
	workers int
	jobs    chan func()
	wg      sync.WaitGroup
	start   sync.Once
	stop    sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with the given number of workers (NumCPU if <= 0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan func(), workers*2),
	}
}

// Start launches the workers. Safe to call more than once.
func (p *Pool) Start() {
	p.start.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	metrics.WorkerInFlight.Inc()
	defer metrics.WorkerInFlight.Dec()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("worker job panicked")
		}
	}()
	job()
}

// Submit queues job, waiting for room until ctx is done.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.stop.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}
