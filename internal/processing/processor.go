// Package processing runs extraction jobs on an in-process worker pool. It
// implements queue.Enqueuer for single-binary local runs where no Redis is
// available.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the buffer cannot take another job.
var ErrQueueFull = errors.New("processing queue full")

// ErrStopped is returned for jobs submitted after Stop.
var ErrStopped = errors.New("processing pool stopped")

// Runner executes one extraction.
type Runner interface {
	Run(ctx context.Context, fileID int64) error
}

// Processor consumes file ids from a buffered channel.
type Processor struct {
	runner  Runner
	logger  *slog.Logger
	queue   chan int64
	workers int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(runner Runner, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		runner:  runner,
		logger:  logger,
		queue:   make(chan int64, workers*16),
		workers: workers,
	}
}

// Start launches the worker goroutines. They exit when ctx is canceled or
// Stop drains the queue.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// EnqueueExtract queues fileID without blocking the caller.
func (p *Processor) EnqueueExtract(ctx context.Context, fileID int64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- fileID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs, lets the workers drain what is queued and waits.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.runner.Run(ctx, id); err != nil {
				p.logger.Error("extraction job failed", "file_id", id, "error", err)
			}
		}
	}
}
