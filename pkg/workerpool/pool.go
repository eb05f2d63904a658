// Package workerpool provides a fixed-size goroutine pool with a bounded
// queue, explicit draining shutdown and typed futures for submitted work.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feichai0017/document-extractor/pkg/logger"
)

// ErrPoolClosed is returned by Submit once Shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of work. ctx is the pool context; it is cancelled when a
// shutdown grace period expires, so long tasks should check it.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of workers.
type Pool struct {
	name   string
	size   int
	tasks  chan Task
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	// Submit calls that got past the closed check
	submitters sync.WaitGroup

	// names workers within this pool only
	seq     atomic.Int64
	running atomic.Int64
}

// New starts a pool with size workers and room for queueSize waiting tasks.
// Submit blocks when the queue is full.
func New(name string, size, queueSize int, log logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		size:   size,
		tasks:  make(chan Task, queueSize),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: log.Named("pool").With(logger.String("pool", name)),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(fmt.Sprintf("%s-%d", name, p.seq.Add(1)))
	}

	p.logger.Info("Worker pool started",
		logger.Int("workers", size),
		logger.Int("queueSize", queueSize),
	)
	return p
}

// Size reports the number of workers.
func (p *Pool) Size() int { return p.size }

// Running reports how many tasks are executing right now.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Submit queues task, blocking while the queue is full. It fails with
// ErrPoolClosed once Shutdown starts and with ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.submitters.Add(1)
	p.mu.RUnlock()
	defer p.submitters.Done()

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(name string) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.tasks:
			p.run(name, task)
		case <-p.quit:
			// drain what was queued before shutdown
			for {
				select {
				case task := <-p.tasks:
					p.run(name, task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(name string, task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				logger.String("worker", name),
				logger.Any("panic", r),
				logger.Stack(),
			)
		}
	}()
	task(p.ctx)
}

// Shutdown stops accepting tasks and waits up to grace for queued and running
// tasks to finish. When grace expires the pool context is cancelled, the
// remaining queue is handed a cancelled context, and Shutdown returns
// context.DeadlineExceeded without waiting for stragglers.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.submitters.Wait()
		p.wg.Wait()
		// a send can win the race against quit after the workers' final drain
		for {
			select {
			case task := <-p.tasks:
				p.run(p.name+"-drain", task)
			default:
				close(done)
				return
			}
		}
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool drained")
		return nil
	case <-timer.C:
		p.cancel()
		p.logger.Warn("Worker pool grace period expired, abandoning pending work",
			logger.Duration("grace", grace),
			logger.Int("queued", len(p.tasks)),
			logger.Int("running", p.Running()),
		)
		return context.DeadlineExceeded
	}
}
