// Package engine is spec.md §6's public facade: New/Listen/StartServer/
// StartClient/Stop/ServerHeader/Fetcher/IOService, wiring the reactor,
// server, client and fetcher packages into one embeddable unit.
//
// Grounded on badu-http/server.go's Server struct (the teacher's
// listen-then-serve, shutdown-fans-out-errors shape), generalized from a
// single net/http.Server to spec.md's multi-acceptor, bidirectional
// engine.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coralreef/httpengine/client"
	"github.com/coralreef/httpengine/config"
	"github.com/coralreef/httpengine/dnscache"
	"github.com/coralreef/httpengine/fetcher"
	"github.com/coralreef/httpengine/metrics"
	"github.com/coralreef/httpengine/reactor"
	"github.com/coralreef/httpengine/server"
)

const defaultServerName = "httpengine/1.0"

// metricsPollInterval is how often Engine samples pool gauges (active
// workers, queue depth) into the attached metrics.Metrics bundle.
const metricsPollInterval = time.Second

// Engine is the top-level handle spec.md §6 describes. Zero value is not
// usable; construct with New.
type Engine struct {
	mu sync.Mutex

	cfg          *config.Config
	serverHeader string
	dnsCache     *dnscache.Cache
	metrics      *metrics.Metrics
	log          *zap.SugaredLogger

	serverPool *reactor.Pool
	acceptors  []*server.Acceptor

	dispatcher *client.Dispatcher
	fetcher    *fetcher.ResourceFetcher

	serverStarted bool
	clientStarted bool
	stopped       bool

	metricsStop chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's zap logger; default is a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches a metrics.Metrics bundle; nil (the default) means
// metrics calls are no-ops.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDNSCache overrides the engine's shared DNS cache.
func WithDNSCache(c *dnscache.Cache) Option {
	return func(e *Engine) { e.dnsCache = c }
}

// WithConfig attaches the tunables StartServer/StartClient/Listen read
// when the caller doesn't override them explicitly (worker counts, DNS
// TTL, client maxTotalConnections/pipelining, default timeouts, the
// server's MaxPipelined soft cap). Default is config.Default() — the
// package's zero-value-safe defaults.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New builds an idle engine, per spec.md §6's `new()`.
func New(opts ...Option) *Engine {
	e := &Engine{
		serverHeader: defaultServerName,
		log:          zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if e.dnsCache == nil {
		e.dnsCache = dnscache.NewWithResolver(net.DefaultResolver, e.cfg.DNSTTL(), e.log)
	}
	if e.metrics != nil {
		e.dnsCache.SetStatsHooks(e.metrics.IncDNSCacheHit, e.metrics.IncDNSCacheMiss)
		e.metricsStop = make(chan struct{})
		go e.runMetricsLoop()
	}
	return e
}

// ServerHeader overrides the Server: response header value, per spec.md
// §6. Safe to call before or after StartServer.
func (e *Engine) ServerHeader(value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serverHeader = value
}

// Listen registers an acceptor bound to address, serving generator for
// every accepted connection, per spec.md §6's `listen(endpoint,
// generator) -> actualEndpoint`. May be called any number of times,
// before or after StartServer; acceptors created before StartServer only
// begin accepting once it runs.
func (e *Engine) Listen(network, address string, generator server.ContentGenerator) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return "", errors.New("engine already stopped")
	}
	if e.serverPool == nil {
		// Bootstrap pool: sized 1 so a Listen before StartServer can still
		// bind its listener and report an actual endpoint; StartServer
		// swaps every acceptor onto the real, correctly-sized pool.
		e.serverPool = reactor.NewPool("server-bootstrap", 1, e.log)
	}
	acc, err := server.NewAcceptor(network, address, generator, e.serverPool, e.cfg.Server.MaxPipelined, e.serverNameLocked, e.log)
	if err != nil {
		return "", errors.Wrap(err, "listen")
	}
	acc.SetConnHooks(e.metrics.IncServerConnsOpen, e.metrics.DecServerConnsOpen)
	acc.SetResponseHook(e.metrics.ObserveServerRequest)
	e.acceptors = append(e.acceptors, acc)
	if e.serverStarted {
		go acc.Serve()
	}
	return acc.Addr().String(), nil
}

func (e *Engine) serverNameLocked() string { return e.serverHeader }

// StartServer brings up the server-side thread pool and begins serving
// every registered acceptor, per spec.md §6. Calling it twice is a hard
// error, per the idempotent-check requirement.
func (e *Engine) StartServer(threads int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serverStarted {
		return errors.New("server already started")
	}
	if threads <= 0 {
		threads = e.cfg.Server.Threads
	}
	bootstrap := e.serverPool
	e.serverPool = reactor.NewPool("server", threads, e.log)
	e.serverStarted = true
	for _, acc := range e.acceptors {
		acc.SetPool(e.serverPool)
		go acc.Serve()
	}
	if bootstrap != nil {
		bootstrap.Stop()
	}
	return nil
}

// StartClient brings up the client-side worker pool and the
// ResourceFetcher, per spec.md §6. Calling it twice is a hard error.
//
// threads <= 0 falls back to cfg.Client.Threads; either way the worker
// count actually started is clamped to cfg.Client.MaxTotalConnections,
// per spec.md §6's client-startup option of that name — each worker holds
// at most one connection at a time, so the worker count is the engine's
// bound on total concurrent outbound connections. cfg.Client.Pipelining
// sizes each worker's task queue, the other named startup option.
func (e *Engine) StartClient(threads int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clientStarted {
		return errors.New("client already started")
	}
	if threads <= 0 {
		threads = e.cfg.Client.Threads
	}
	if max := e.cfg.Client.MaxTotalConnections; max > 0 && threads > max {
		threads = max
	}
	e.dispatcher = client.NewDispatcher(threads, e.dnsCache, e.cfg.ClientDefaultTimeout(), e.cfg.Client.Pipelining, e.onFetch, e.log)
	e.fetcher = fetcher.New(e.dispatcher, e.cfg.FetcherDefaultTimeout(), e.cfg.Client.MaxRedirects, nil, e.log)
	e.clientStarted = true
	return nil
}

// onFetch forwards a completed fetch's outcome/latency to e.metrics; safe
// to call from any worker goroutine since e.metrics is set once at
// construction and never mutated afterward.
func (e *Engine) onFetch(outcome string, seconds float64) {
	e.metrics.ObserveFetchLatency(outcome, seconds)
}

// Fetcher returns the high-level multi-query API, per spec.md §6's
// `fetcher() -> ResourceFetcher`. Nil until StartClient has run.
func (e *Engine) Fetcher() *fetcher.ResourceFetcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetcher
}

// Metrics returns the attached metrics bundle, or nil if none was
// configured via WithMetrics.
func (e *Engine) Metrics() *metrics.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// IOService exposes the server-side reactor pool for hosts that want to
// piggy-back work onto it, per spec.md §6's optional escape hatch.
func (e *Engine) IOService() *reactor.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serverPool
}

// runMetricsLoop periodically samples the server pool and client
// dispatcher into e.metrics' gauges. Only started when WithMetrics
// attached a non-nil bundle.
func (e *Engine) runMetricsLoop() {
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.mu.Lock()
			sp := e.serverPool
			d := e.dispatcher
			e.mu.Unlock()
			if sp != nil {
				e.metrics.SetPoolActiveWorkers("server", sp.ActiveWorkers())
				e.metrics.SetPoolQueueDepth("server", sp.QueueDepth())
			}
			if d != nil {
				e.metrics.SetPoolActiveWorkers("client", d.ActiveWorkers())
				e.metrics.SetPoolQueueDepth("client", d.QueueDepth())
			}
		case <-e.metricsStop:
			return
		}
	}
}

// Stop performs the full graceful drain of spec.md §5: close every
// acceptor (which in turn closes its live connections), wait for the
// server pool to drain, then join every client worker. Shutdown errors
// from independent acceptors are collected with go-multierror rather
// than short-circuiting on the first failure.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	acceptors := append([]*server.Acceptor(nil), e.acceptors...)
	serverPool := e.serverPool
	dispatcher := e.dispatcher
	metricsStop := e.metricsStop
	e.mu.Unlock()

	if metricsStop != nil {
		close(metricsStop)
	}

	var result *multierror.Error

	g, gctx := errgroup.WithContext(ctx)
	for _, acc := range acceptors {
		acc := acc
		g.Go(func() error {
			acc.Close()
			select {
			case <-acc.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("acceptor drain: %w", gctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}

	if serverPool != nil {
		serverPool.Stop()
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}

	return result.ErrorOrNil()
}
