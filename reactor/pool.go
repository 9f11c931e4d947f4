// Package reactor is the Go-native reading of spec.md §4.1's asynchronous
// I/O reactor and worker pool: instead of a single-threaded event loop
// dispatching callbacks, Pool is a fixed-size goroutine pool draining a
// work queue, and Strand is a per-connection serializer, run on the
// shared Pool, that gives the same "at most one callback in flight at a
// time" guarantee an asio::strand gives. Naming and graceful-stop shape are grounded on
// forTWOS-selfFastHttp/workerpool.go's goroutine-pool (start, serve,
// stop-and-drain) idiom, generalized from "one goroutine per accepted
// connection" to "post arbitrary work, fixed worker count".
package reactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool runs posted work items on a fixed number of worker goroutines.
// Every worker recovers from panics in the work it runs and logs them,
// per spec.md §4.1: "an uncaught exception must never terminate a
// worker."
type Pool struct {
	name   string
	log    *zap.SugaredLogger
	work   chan func()
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}

	active int64 // workers currently running a task, for metrics polling
}

// NewPool creates a pool with n worker goroutines named "<name>:N" for
// diagnostics, matching spec.md §4.1's "http:N" / "chttp:N" convention.
// The pool starts immediately; there is no separate Start step because Go
// goroutines are cheap enough that "created idle" buys nothing a rewrite
// needs to preserve.
func NewPool(name string, n int, log *zap.SugaredLogger) *Pool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pool{
		name:   name,
		log:    log,
		work:   make(chan func(), 256),
		closed: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

func (p *Pool) runWorker(idx int) {
	defer p.wg.Done()
	workerName := fmt.Sprintf("%s:%d", p.name, idx)
	for fn := range p.work {
		p.runSafely(workerName, fn)
	}
}

func (p *Pool) runSafely(workerName string, fn func()) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("worker recovered from panic", "worker", workerName, "panic", r)
		}
	}()
	fn()
}

// ActiveWorkers reports how many worker goroutines are currently running a
// task, for periodic metrics polling.
func (p *Pool) ActiveWorkers() int { return int(atomic.LoadInt64(&p.active)) }

// QueueDepth reports the number of tasks currently buffered, waiting for a
// free worker.
func (p *Pool) QueueDepth() int { return len(p.work) }

// Post schedules fn to run on any worker. Safe to call concurrently; a
// Post after Stop has been called is dropped and logged, since no worker
// remains to drain it.
func (p *Pool) Post(fn func()) {
	select {
	case <-p.closed:
		p.log.Warnw("post after stop dropped", "pool", p.name)
		return
	default:
	}
	select {
	case p.work <- fn:
	case <-p.closed:
		p.log.Warnw("post after stop dropped", "pool", p.name)
	}
}

// Stop releases the pool's "work" sentinel so every worker goroutine
// drains the remaining queue and exits, then waits for them to join, per
// spec.md §4.1 step (4)-(5).
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.closed)
		close(p.work)
	})
	p.wg.Wait()
}

// Strand serializes callbacks so at most one runs at a time, giving the
// per-connection ordering guarantee spec.md §5 requires ("request
// parsing, dispatch, and response emission are strictly serialized").
// Unlike a hand-rolled per-connection goroutine, a Strand runs its queued
// callbacks on the shared Pool: a worker only drains the strand while it
// has queued work and is released back to the pool the instant the queue
// empties, instead of being pinned to one connection for its whole
// lifetime.
type Strand struct {
	pool *Pool
	name string
	log  *zap.SugaredLogger

	mu      sync.Mutex
	queue   []func()
	running bool
	closed  bool

	doneOnce sync.Once
	done     chan struct{}
}

// NewStrand binds the strand to pool. ctx cancellation, like Close, stops
// the strand from accepting new work at once; callbacks already queued
// still run, in order, before Done is closed.
func NewStrand(ctx context.Context, pool *Pool, name string, log *zap.SugaredLogger) *Strand {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Strand{pool: pool, name: name, log: log, done: make(chan struct{})}
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.closed = true
		idle := !s.running
		s.mu.Unlock()
		if idle {
			s.markDone()
		}
	}()
	return s
}

func (s *Strand) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Wrap enqueues fn. If the strand's drain loop isn't already running on the
// pool, this posts it. A Wrap after Close or context cancellation is
// dropped.
func (s *Strand) Wrap(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.pool.Post(s.drain)
}

// drain runs on a pool worker, executing every queued callback in arrival
// order, then gives the worker back the moment the queue empties.
func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.markDone()
			}
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.runSafely(fn)
	}
}

func (s *Strand) runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("strand recovered from panic", "strand", s.name, "panic", r)
		}
	}()
	fn()
}

// Close stops accepting new work. Safe to call more than once.
func (s *Strand) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	idle := !s.running
	s.mu.Unlock()
	if idle && !already {
		s.markDone()
	}
}

// Done reports a channel closed once the strand has drained its queue and
// been closed (via Close or context cancellation), for callers that need
// to wait out in-flight work during drain.
func (s *Strand) Done() <-chan struct{} { return s.done }
