package client

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/dnscache"
	"github.com/coralreef/httpengine/herrors"
)

var errWorkerStopped = herrors.Transport("worker stopped", "worker_stopped")

// Dispatcher is spec.md §4.7: a list of workers and a round-robin
// iterator. Fetch advances the iterator (wrapping at the end) and posts
// the task to the selected worker. Fetching with zero workers is a hard
// error, per spec.md's invariant: "the round-robin client iterator never
// dereferences an empty list."
type Dispatcher struct {
	mu      sync.Mutex
	workers []*Worker
	next    int
}

// NewDispatcher starts n workers sharing cache and defaultTimeout.
// queueDepth and onFetch are forwarded to every worker; see NewWorker.
func NewDispatcher(n int, cache *dnscache.Cache, defaultTimeout time.Duration, queueDepth int, onFetch func(outcome string, seconds float64), log *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{}
	for i := 0; i < n; i++ {
		d.workers = append(d.workers, NewWorker(workerName(i), cache, defaultTimeout, queueDepth, onFetch, log))
	}
	return d
}

// ActiveWorkers reports how many of this dispatcher's workers are
// currently running a transfer, for periodic metrics polling.
func (d *Dispatcher) ActiveWorkers() int {
	d.mu.Lock()
	workers := append([]*Worker(nil), d.workers...)
	d.mu.Unlock()
	n := 0
	for _, w := range workers {
		n += w.ActiveTasks()
	}
	return n
}

// QueueDepth reports the total number of tasks buffered across every
// worker, for periodic metrics polling.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	workers := append([]*Worker(nil), d.workers...)
	d.mu.Unlock()
	n := 0
	for _, w := range workers {
		n += w.QueueDepth()
	}
	return n
}

func workerName(i int) string {
	return "chttp:" + strconv.Itoa(i)
}

// Fetch advances the round-robin iterator and posts location to the
// selected worker. It panics-never, erroring instead: with zero workers
// this is a hard error raised before any I/O, per spec.md §8.
func (d *Dispatcher) Fetch(location string, sink Sink, opts Options) error {
	d.mu.Lock()
	if len(d.workers) == 0 {
		d.mu.Unlock()
		return errNoWorkers
	}
	w := d.workers[d.next]
	d.next = (d.next + 1) % len(d.workers)
	d.mu.Unlock()

	w.Post(location, sink, opts)
	return nil
}

var errNoWorkers = herrors.Transport("fetch with no workers configured", "no_workers")

// Stop joins every worker, per spec.md §4.1's teardown ordering (client
// workers joined as part of Engine.Stop()).
func (d *Dispatcher) Stop() {
	var wg sync.WaitGroup
	d.mu.Lock()
	workers := append([]*Worker(nil), d.workers...)
	d.mu.Unlock()
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}

// OnDemandDispatcher defers worker creation until the first Fetch, per
// spec.md §4.7's on-demand variant.
type OnDemandDispatcher struct {
	mu             sync.Mutex
	dispatcher     *Dispatcher
	workerCount    int
	cache          *dnscache.Cache
	defaultTimeout time.Duration
	queueDepth     int
	onFetch        func(outcome string, seconds float64)
	log            *zap.SugaredLogger
}

func NewOnDemandDispatcher(workerCount int, cache *dnscache.Cache, defaultTimeout time.Duration, queueDepth int, onFetch func(outcome string, seconds float64), log *zap.SugaredLogger) *OnDemandDispatcher {
	return &OnDemandDispatcher{workerCount: workerCount, cache: cache, defaultTimeout: defaultTimeout, queueDepth: queueDepth, onFetch: onFetch, log: log}
}

func (o *OnDemandDispatcher) Fetch(location string, sink Sink, opts Options) error {
	o.mu.Lock()
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher(o.workerCount, o.cache, o.defaultTimeout, o.queueDepth, o.onFetch, o.log)
	}
	d := o.dispatcher
	o.mu.Unlock()
	return d.Fetch(location, sink, opts)
}

func (o *OnDemandDispatcher) Stop() {
	o.mu.Lock()
	d := o.dispatcher
	o.mu.Unlock()
	if d != nil {
		d.Stop()
	}
}
