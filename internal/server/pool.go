package server

import (
	"context"
	"errors"
	"sync"

	"pages-deployer/internal/common/logger"
)

var (
	ErrQueueFull  = errors.New("build queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Job is one unit of queued work.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	logger  logger.Logger

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, log logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		logger:  log.WithFields(map[string]interface{}{"component": "pool"}),
	}
}

// Start launches the workers. Jobs see ctx without its cancellation: a started
// build always runs to completion.
func (p *Pool) Start(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(jobCtx, id, job)
			}
		}(i)
	}
	p.logger.Info("worker pool started", map[string]interface{}{"workers": p.workers, "queueSize": cap(p.jobs)})
}

func (p *Pool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", map[string]interface{}{"worker": id, "panic": r})
		}
	}()
	job(ctx)
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
