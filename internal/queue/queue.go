// Package queue runs submitted work items on a fixed set of goroutines.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// ErrClosed is returned by Enqueue after Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Handler processes one item. Errors are logged; the item is not retried.
type Handler[T any] func(ctx context.Context, item T) error

// Pool is an unbounded FIFO of items consumed by a fixed number of workers.
// Enqueue never waits for a worker.
type Pool[T any] struct {
	handle    Handler[T]
	logger    *zap.Logger
	workers   int
	timeout   time.Duration
	name      func(T) string
	highWater int

	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ready  *sync.Cond
	items  []T
	closed bool
}

type Option func(*options)

type options struct {
	workers   int
	queueSize int
	timeout   time.Duration
}

func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets the backlog above which Enqueue logs a warning. The
// backlog itself is not capped.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithProcessTimeout bounds each handler call. Zero leaves calls unbounded.
func WithProcessTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New starts the workers. name labels items in logs and may be nil.
func New[T any](handle Handler[T], name func(T) string, log *zap.Logger, opts ...Option) *Pool[T] {
	o := options{workers: DefaultWorkers, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if name == nil {
		name = func(item T) string { return fmt.Sprint(item) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		handle:    handle,
		logger:    log,
		workers:   o.workers,
		timeout:   o.timeout,
		name:      name,
		highWater: o.queueSize,
		items:     make([]T, 0, o.queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.ready = sync.NewCond(&p.mu)
	p.start()
	return p
}

func (p *Pool[T]) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(i + 1)
		}
	})
}

func (p *Pool[T]) work(workerID int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", workerID))
	log.Debug("worker started")

	for {
		item, ok := p.next()
		if !ok {
			break
		}
		p.process(log, item)
	}

	log.Debug("worker stopped")
}

// next blocks until an item is available. It reports false once the pool is
// closed and the backlog is empty.
func (p *Pool[T]) next() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.items) == 0 && !p.closed {
		p.ready.Wait()
	}
	var zero T
	if len(p.items) == 0 {
		return zero, false
	}
	item := p.items[0]
	p.items[0] = zero
	p.items = p.items[1:]
	return item, true
}

func (p *Pool[T]) process(log *zap.Logger, item T) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker recovered from panic", zap.String("item", p.name(item)), zap.Any("panic", r))
		}
	}()

	if err := p.handle(ctx, item); err != nil {
		log.Warn("processing failed", zap.String("item", p.name(item)), zap.Error(err))
		return
	}
	log.Debug("processed item", zap.String("item", p.name(item)))
}

// Enqueue appends item to the backlog and wakes a worker. It does not block
// on the workers; ctx is accepted for interface compatibility only.
func (p *Pool[T]) Enqueue(_ context.Context, item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.items = append(p.items, item)
	p.ready.Signal()

	if backlog := len(p.items); p.highWater > 0 && backlog > p.highWater {
		p.logger.Warn("queue backlog above high water mark",
			zap.String("item", p.name(item)), zap.Int("backlog", backlog), zap.Int("high_water", p.highWater))
	} else {
		p.logger.Debug("queued item", zap.String("item", p.name(item)))
	}
	return nil
}

// Pending is the number of queued items not yet picked up by a worker.
func (p *Pool[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Shutdown stops accepting items and waits for queued ones to finish. If ctx
// ends first, in-flight handlers are cancelled and Shutdown returns ctx's error.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.ready.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("shutdown interrupted, cancelling in-flight work")
		<-done
		return ctx.Err()
	}
}
