package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/dnscache"
)

// task is one fetch posted to a worker's queue.
type task struct {
	url     string
	sink    Sink
	options Options
}

// Worker is spec.md §4.6's per-worker transfer multiplexer: a single
// goroutine draining a FIFO task queue, each task a fully independent
// blocking HTTP/1.1 exchange. Concurrency across transfers comes from
// running N of these, not from interleaving many transfers on one
// goroutine — see the client package doc comment for why that's the
// faithful Go reading of the original's reactor-driven multi-handle.
type Worker struct {
	name   string
	dialer Dialer
	cache  *dnscache.Cache
	log    *zap.SugaredLogger

	tasks    chan task
	closing  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	defaultTimeout time.Duration

	active int64 // tasks currently in flight (0 or 1), for metrics polling

	// onFetch, if set, is called once per completed task with the
	// terminal outcome ("success" or "error") and the wall-clock duration
	// of the transfer, forwarding spec.md §6's per-fetch latency to an
	// embedder's metrics.
	onFetch func(outcome string, seconds float64)
}

// NewWorker starts a worker's goroutine immediately, named "chttp:N" for
// diagnostics per spec.md §4.1. queueDepth sizes the worker's task queue
// (spec.md §6's client-startup "pipelining" option: how many fetches may
// be queued ahead of this worker before Post blocks); <= 0 falls back to
// 128.
func NewWorker(name string, cache *dnscache.Cache, defaultTimeout time.Duration, queueDepth int, onFetch func(outcome string, seconds float64), log *zap.SugaredLogger) *Worker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if queueDepth <= 0 {
		queueDepth = 128
	}
	w := &Worker{
		name:           name,
		dialer:         &net.Dialer{},
		cache:          cache,
		log:            log,
		tasks:          make(chan task, queueDepth),
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
		defaultTimeout: defaultTimeout,
		onFetch:        onFetch,
	}
	go w.run()
	return w
}

// ActiveTasks reports 0 or 1 depending on whether this worker is currently
// running a transfer, for periodic metrics polling.
func (w *Worker) ActiveTasks() int { return int(atomic.LoadInt64(&w.active)) }

// QueueDepth reports the number of tasks currently buffered ahead of this
// worker.
func (w *Worker) QueueDepth() int { return len(w.tasks) }

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case t, ok := <-w.tasks:
			if !ok {
				return
			}
			w.runSafely(t)
		case <-w.closing:
			for {
				select {
				case t := <-w.tasks:
					t.sink.Error(errWorkerStopped)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) runSafely(t task) {
	atomic.AddInt64(&w.active, 1)
	defer atomic.AddInt64(&w.active, -1)
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("worker recovered from panic", "worker", w.name, "panic", r)
		}
	}()
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), t.options.effectiveTimeout(w.defaultTimeout))
	defer cancel()

	res, err := doTransfer(ctx, w.dialer, w.cache, t.url, t.options, w.log)
	if err != nil {
		t.sink.Error(err)
		w.reportFetch("error", start)
		return
	}
	dispatch(ctx, w.dialer, w.cache, res, t.options, t.options.maxRedirects(), t.sink, w.log)
	w.reportFetch("success", start)
}

func (w *Worker) reportFetch(outcome string, start time.Time) {
	if w.onFetch != nil {
		w.onFetch(outcome, time.Since(start).Seconds())
	}
}

// Post enqueues a fetch task onto this worker's goroutine. Posting onto a
// worker is the only thread-safe entry point into it, per spec.md §4.7.
func (w *Worker) Post(url string, sink Sink, opts Options) {
	select {
	case <-w.closing:
		sink.Error(errWorkerStopped)
		return
	default:
	}
	select {
	case w.tasks <- task{url: url, sink: sink, options: opts}:
	case <-w.closing:
		sink.Error(errWorkerStopped)
	}
}

// Stop signals the worker to drain its queue and exit, then waits for it
// to join, per spec.md §4.6's teardown: "destroys all pending
// ClientConnections... tears down the engine." Tasks still queued when
// the worker exits are not run; their sinks receive errWorkerStopped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.closing) })
	<-w.done
}
