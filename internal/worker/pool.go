// Package worker runs background tasks on a fixed number of goroutines fed by
// a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ytget/yt-saver-bot/internal/logging"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

// Task is a unit of background work. ctx is cancelled on Shutdown.
type Task func(ctx context.Context)

type Pool struct {
	name   string
	queue  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	busy   atomic.Int64
}

// New starts size workers reading from a queue of queueSize pending tasks.
func New(ctx context.Context, name string, size, queueSize int, log logging.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logging.Nop{}
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		name:   name,
		queue:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("pool", name),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued and running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels the task context, then closes the pool.
func (p *Pool) Shutdown() {
	p.cancel()
	p.Close()
}

// Stats reports running and queued task counts.
func (p *Pool) Stats() (running, queued int) {
	return int(p.busy.Load()), len(p.queue)
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(id, t)
	}
}

func (p *Pool) run(id int, t Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(p.ctx, "task panicked",
				"worker", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	t(p.ctx)
}
