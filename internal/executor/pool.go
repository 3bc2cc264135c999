package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/metrics"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work run by a pool worker.
type Task func()

// Pool runs tasks on a fixed number of workers. Tasks are handed over on an
// unbuffered channel, so a submitter waits until a worker is free and at most
// size tasks ever run at once.
type Pool struct {
	name string
	size int

	jobs chan Task
	quit chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	inFlight atomic.Int64
}

// NewPool starts size workers.
func NewPool(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		name: name,
		size: size,
		jobs: make(chan Task),
		quit: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	logging.Debug().Str("pool", name).Int("workers", size).Msg("Worker pool started")
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.jobs {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	p.inFlight.Add(1)
	metrics.PoolInFlight.WithLabelValues(p.name).Inc()
	defer func() {
		metrics.PoolInFlight.WithLabelValues(p.name).Dec()
		p.inFlight.Add(-1)
		if r := recover(); r != nil {
			logging.Error().Str("pool", p.name).Interface("panic", r).Msg("Task panicked")
		}
	}()
	task()
}

// Submit hands task to a worker. It blocks while every worker is busy, until
// ctx ends or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Shutdown stops admission and waits for running tasks to finish, or for ctx
// to end. It is safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		// Unblock waiting submitters before taking the write lock.
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug().Str("pool", p.name).Msg("Worker pool drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Size() int { return p.size }

// InFlight is the number of tasks currently running.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }
