// Package worker provides a fixed-size worker pool for background jobs
// such as cache warming.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when submitting to a closed pool
var ErrPoolClosed = errors.New("worker: pool closed")

// Job represents a unit of work to be executed by a worker.
type Job struct {
	ID      string
	Execute func(ctx context.Context) (any, error)
}

// Result represents the outcome of a job execution.
type Result struct {
	JobID string
	Value any
	Err   error
}

// PoolConfig configures a Pool
type PoolConfig struct {
	Workers   int // defaults to 1
	QueueSize int // 0 means unbuffered
}

// Stats is a snapshot of pool counters
type Stats struct {
	JobsSubmitted int64
	JobsCompleted int64
	JobsFailed    int64
}

// Pool runs jobs on a fixed number of goroutines pulling from a queue.
// Jobs receive the pool context, so cancelling the parent context passed
// to NewPoolWithConfig reaches every running job.
type Pool struct {
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPoolWithConfig creates a pool and starts its workers.
func NewPoolWithConfig(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		jobQueue: make(chan Job, cfg.QueueSize),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if _, err := job.Execute(p.ctx); err != nil {
				p.failed.Add(1)
			}
			p.completed.Add(1)
		}
	}
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	}
}

// SubmitAndWait runs jobs and collects their results in completion order.
// A job that could not be queued reports the submit error as its result.
// When the pool context ends first, the results gathered so far are
// returned.
func (p *Pool) SubmitAndWait(jobs []Job) []Result {
	done := make(chan Result, len(jobs))

	for _, job := range jobs {
		job := job
		wrapped := Job{
			ID: job.ID,
			Execute: func(ctx context.Context) (any, error) {
				value, err := job.Execute(ctx)
				done <- Result{JobID: job.ID, Value: value, Err: err}
				return value, err
			},
		}
		if err := p.Submit(wrapped); err != nil {
			done <- Result{JobID: job.ID, Err: err}
		}
	}

	results := make([]Result, 0, len(jobs))
	for len(results) < len(jobs) {
		select {
		case r := <-done:
			results = append(results, r)
		case <-p.ctx.Done():
			return drain(done, results)
		}
	}
	return results
}

// drain appends results that are already waiting in done
func drain(done <-chan Result, results []Result) []Result {
	for {
		select {
		case r := <-done:
			results = append(results, r)
		default:
			return results
		}
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
		JobsFailed:    p.failed.Load(),
	}
}

// Close stops accepting jobs and waits for queued jobs to finish.
// It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
