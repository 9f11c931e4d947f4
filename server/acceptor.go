package server

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/reactor"
)

// Acceptor implements spec.md §4.3: bound to a listener, it begins one
// outstanding accept; each completion creates a fresh ServerConnection,
// registers it, starts reading on it, then re-arms the accept.
type Acceptor struct {
	ln           net.Listener
	generator    ContentGenerator
	pool         *reactor.Pool
	serverName   func() string
	maxPipelined int
	log          *zap.SugaredLogger

	mu       sync.Mutex
	conns    map[*ServerConnection]struct{}
	stopped  bool
	stopOnce sync.Once
	doneCh   chan struct{}

	onConnOpen  func()
	onConnClose func()
	onResponse  func(statusClass string)
}

// SetConnHooks installs callbacks fired as connections open and close,
// for an embedder that wants connection-count metrics without this
// package importing a metrics library directly.
func (a *Acceptor) SetConnHooks(onOpen, onClose func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnOpen, a.onConnClose = onOpen, onClose
}

// SetResponseHook installs cb, forwarded to every connection's
// SetResponseHook so an embedder can count responses by status class
// without this package importing a metrics library directly.
func (a *Acceptor) SetResponseHook(cb func(statusClass string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onResponse = cb
}

// NewAcceptor binds to network/address (e.g. "tcp", "127.0.0.1:0") and
// begins accepting once Serve is called. The caller can read Addr() for
// the actually bound endpoint, important when port 0 was requested.
// maxPipelined configures each accepted connection's pipelined-request
// soft cap (spec.md §4.4); <= 0 falls back to defaultMaxPipelined.
func NewAcceptor(network, address string, generator ContentGenerator, pool *reactor.Pool, maxPipelined int, serverName func() string, log *zap.SugaredLogger) (*Acceptor, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if maxPipelined <= 0 {
		maxPipelined = defaultMaxPipelined
	}
	return &Acceptor{
		ln:           ln,
		generator:    generator,
		pool:         pool,
		serverName:   serverName,
		maxPipelined: maxPipelined,
		log:          log,
		conns:        make(map[*ServerConnection]struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Addr returns the bound local address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// SetPool rebinds the pool newly accepted connections' dispatch strands
// run on. Used by callers that bind an acceptor's listener (to learn its
// actual endpoint) before the engine's server thread pool has been sized,
// per spec.md §6's "listen may be called any number of times" ahead of
// startServer.
func (a *Acceptor) SetPool(p *reactor.Pool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pool = p
}

// Serve runs the accept loop until Close is called. Each accepted
// connection's Serve loop runs on its own goroutine — it blocks for the
// connection's whole lifetime waiting on the next request, so posting it
// onto the bounded worker pool would pin a worker to every open
// keep-alive connection and starve new ones once the pool filled up. The
// pool is still where the real work happens: per-request dispatch runs
// through the connection's reactor.Strand, which posts onto the pool only
// while it has queued requests, per spec.md §4.1's "N threads drain the
// reactor's server work queue".
func (a *Acceptor) Serve() {
	defer close(a.doneCh)
	for {
		nc, err := a.ln.Accept()
		if err != nil {
			a.mu.Lock()
			stopped := a.stopped
			a.mu.Unlock()
			if stopped {
				return
			}
			a.log.Warnw("accept error", "error", err)
			continue
		}
		a.mu.Lock()
		pool := a.pool
		a.mu.Unlock()
		conn := NewServerConnection(nc, a.generator, a.serverName(), a.maxPipelined, pool, a.log)
		a.mu.Lock()
		a.conns[conn] = struct{}{}
		onOpen, onClose := a.onConnOpen, a.onConnClose
		conn.SetResponseHook(a.onResponse)
		a.mu.Unlock()
		if onOpen != nil {
			onOpen()
		}

		go func() {
			conn.Serve()
			a.mu.Lock()
			delete(a.conns, conn)
			a.mu.Unlock()
			if onClose != nil {
				onClose()
			}
		}()
	}
}

// Close stops accepting new connections and closes every live connection,
// per spec.md §5's graceful-shutdown ordering: "closes every acceptor...
// then closes all connections".
func (a *Acceptor) Close() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.ln.Close()
		conns := make([]*ServerConnection, 0, len(a.conns))
		for c := range a.conns {
			conns = append(conns, c)
		}
		a.mu.Unlock()

		for _, c := range conns {
			c.Close()
		}
	})
}

// Done returns a channel closed once the accept loop has exited.
func (a *Acceptor) Done() <-chan struct{} { return a.doneCh }

// ActiveConnCount reports the number of currently live connections, for
// drain-wait diagnostics.
func (a *Acceptor) ActiveConnCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
