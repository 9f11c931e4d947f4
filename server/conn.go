package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/headers"
	"github.com/coralreef/httpengine/herrors"
	"github.com/coralreef/httpengine/httpdate"
	"github.com/coralreef/httpengine/reactor"
)

// ConnState is the ServerConnection state of spec.md §4.4.
type ConnState int32

const (
	connReady ConnState = iota
	connBusy
	connBusyClose
	connClosed
)

// defaultMaxPipelined is the soft cap on outstanding pipelined requests
// before the reader stops issuing new reads, the supplemented
// backpressure feature SPEC_FULL.md §4 adds from original_source's fixed
// pending-request ring.
const defaultMaxPipelined = 64

var connIDCounter int64 // global worker-id counter, per spec.md §9 (logging only)

// ServerConnection is the per-connection finite-state machine of spec.md
// §4.4: accept → parse request line → parse headers → dispatch → stream
// response → loop or close. Dispatch and response emission run on the
// connection's reactor.Strand (see the strand field), giving the
// serialization guarantee spec.md §5 assigns to a per-connection strand
// even though a unilateral Close (from the acceptor's drain) can arrive on
// a different goroutine. The strand itself runs its queued work on the
// shared server reactor.Pool rather than a dedicated goroutine, so an idle
// keep-alive connection between requests holds no pool worker.
type ServerConnection struct {
	id         int64
	netConn    net.Conn
	bufReader  *bufio.Reader
	bufWriter  *bufio.Writer
	generator  ContentGenerator
	serverName string
	log        *zap.SugaredLogger

	maxPipelined int
	pending      chan *Request // requests parsed (ready or broken) awaiting dispatch

	// strand serializes dispatch/response emission per spec.md §4.4's "all
	// ServerConnection operations are serialized through a per-connection
	// strand" — every request is dispatched through this strand, one at a
	// time on a pool worker, rather than wherever Serve happens to run.
	strand     *reactor.Strand
	strandStop context.CancelFunc

	state atomic.Int32 // ConnState

	abortMu sync.Mutex
	aborter func()

	closeOnce sync.Once
	closed    chan struct{}

	lastMethod string

	// onResponse, if set, is called once per finished response with its
	// status class ("2xx", "3xx", ...), for an embedder's request-count
	// metrics without this package importing a metrics library directly.
	onResponse func(statusClass string)
}

// SetResponseHook installs cb, invoked after every response this
// connection finishes sending.
func (c *ServerConnection) SetResponseHook(cb func(statusClass string)) {
	c.onResponse = cb
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "1xx"
	}
}

// NewServerConnection wraps a freshly accepted net.Conn. pool backs the
// connection's dispatch strand: dispatch work runs there rather than
// pinning a dedicated goroutine (and therefore a pool worker) to this
// connection for its whole lifetime — a worker only drains queued
// requests, and is freed back to pool the moment none remain. The caller
// must call Serve to start the read/dispatch loops, typically on its own
// goroutine since Serve blocks for the connection's lifetime waiting on
// the next request. maxPipelined <= 0 falls back to defaultMaxPipelined.
func NewServerConnection(nc net.Conn, generator ContentGenerator, serverName string, maxPipelined int, pool *reactor.Pool, log *zap.SugaredLogger) *ServerConnection {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if maxPipelined <= 0 {
		maxPipelined = defaultMaxPipelined
	}
	id := atomic.AddInt64(&connIDCounter, 1)
	ctx, cancel := context.WithCancel(context.Background())
	c := &ServerConnection{
		id:           id,
		netConn:      nc,
		bufReader:    bufio.NewReader(nc),
		bufWriter:    bufio.NewWriter(nc),
		generator:    generator,
		serverName:   serverName,
		log:          log,
		maxPipelined: maxPipelined,
		pending:      make(chan *Request, maxPipelined),
		strand:       reactor.NewStrand(ctx, pool, "http:"+strconv.FormatInt(id, 10), log),
		strandStop:   cancel,
		closed:       make(chan struct{}),
	}
	c.state.Store(int32(connReady))
	return c
}

// ID returns the connection's diagnostic identifier.
func (c *ServerConnection) ID() int64 { return c.id }

func (c *ServerConnection) getState() ConnState { return ConnState(c.state.Load()) }

// finished reports whether the connection has entered busyClose or
// closed, per spec.md §4.4's definition of Sink.CheckAborted.
func (c *ServerConnection) finished() bool {
	s := c.getState()
	return s == connBusyClose || s == connClosed
}

func (c *ServerConnection) setAborter(cb func()) {
	c.abortMu.Lock()
	c.aborter = cb
	c.abortMu.Unlock()
}

func (c *ServerConnection) fireAborter() {
	c.abortMu.Lock()
	cb := c.aborter
	c.aborter = nil
	c.abortMu.Unlock()
	if cb != nil {
		cb()
	}
}

// Serve runs the connection until it closes. It starts a reader goroutine
// that parses the request stream (pipelining ahead of processing), and for
// each ready-or-broken request hands dispatch off to the connection's
// strand, waiting for that dispatch to finish before considering the next
// pending request.
func (c *ServerConnection) Serve() {
	defer c.closeConn()

	go c.readLoop()

	for {
		select {
		case req, ok := <-c.pending:
			if !ok {
				return
			}
			if c.getState() != connReady {
				return
			}
			c.state.Store(int32(connBusy))
			done := make(chan struct{})
			c.strand.Wrap(func() {
				defer close(done)
				c.dispatch(req)
			})
			select {
			case <-done:
			case <-c.strand.Done():
				return
			}
			if c.getState() == connBusyClose {
				return
			}
			c.state.Store(int32(connReady))
		case <-c.closed:
			return
		}
	}
}

// readLoop parses requests off the wire strictly in arrival order,
// pushing each onto c.pending once it is ready or broken, per spec.md
// §4.4 step 3: "Immediately after a request is marked ready, the
// connection starts reading the next request... while processing the
// current one."
func (c *ServerConnection) readLoop() {
	defer close(c.pending)
	first := true
	for {
		if c.finished() {
			return
		}
		req, err := c.readOneRequest(first)
		first = false
		if err != nil {
			return
		}
		select {
		case c.pending <- req:
		case <-c.closed:
			return
		}
		if req.State == StateBroken {
			return
		}
	}
}

// readOneRequest parses one request line plus headers from the buffered
// reader. first indicates this is the very first request on the
// connection, which tolerates a single leading blank line per RFC 7230
// robustness (spec.md §4.4 step 1).
func (c *ServerConnection) readOneRequest(first bool) (*Request, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	if first && line == "" {
		line, err = c.readLine()
		if err != nil {
			return nil, err
		}
	}

	req := newRequest()
	req.Lines = 1

	method, uri, version, ok := parseRequestLine(line)
	if !ok {
		req.State = StateBroken
		req.BrokenReason = "malformed request line"
		return req, nil
	}
	req.Method, req.URI, req.Version = method, uri, version
	c.lastMethod = method

	var lastName string
	for {
		hline, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if hline == "" {
			req.State = StateReady
			return req, nil
		}
		req.Lines++
		if isFoldedContinuation(hline) {
			if lastName == "" {
				req.State = StateBroken
				req.BrokenReason = "header folding without predecessor"
				return req, nil
			}
			existing := req.Headers.Get(lastName)
			req.Headers.Set(lastName, existing+" "+strings.TrimSpace(hline))
			continue
		}
		name, value, ok := splitHeaderLine(hline)
		if !ok {
			req.State = StateBroken
			req.BrokenReason = "header without colon"
			return req, nil
		}
		req.Headers.Add(name, value)
		lastName = headers.Canonical(name)
	}
}

func (c *ServerConnection) readLine() (string, error) {
	line, err := c.bufReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isFoldedContinuation(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

func parseRequestLine(line string) (method, uri, version string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// dispatch pops req (already ready or broken) and either runs the
// ContentGenerator or emits the 400 path, per spec.md §4.4 step 4.
func (c *ServerConnection) dispatch(req *Request) {
	if req.State == StateBroken {
		c.sendStatusOnly(400, req.BrokenReason)
		return
	}

	if !isMethodAllowed(req.Method) {
		c.sendError(req, herrors.NotAllowed("method not allowed"))
		return
	}

	sink := newHTTPSink(c, req)
	if err := c.generator.Serve(req, sink); err != nil {
		sink.Error(err)
	}
}

func isMethodAllowed(method string) bool {
	return method == "GET" || method == "HEAD"
}

// sendStatusOnly writes a bare status response with the standard error
// body, used for the 400 path before a Request has even produced a sink.
func (c *ServerConnection) sendStatusOnly(code int, reason string) {
	body := []byte(errorBody(code, reason))
	h := headers.New()
	h.Set("Content-Type", "text/html; charset=utf-8")
	c.writeResponse(&Response{Code: code, Reason: reason, Headers: h, Close: true}, body, false)
}

func (c *ServerConnection) sendError(req *Request, err error) error {
	code := 500
	reason := err.Error()
	if he, ok := err.(*herrors.Error); ok {
		if sc, has := he.StatusCode(); has {
			code = sc
		}
	}
	body := []byte(errorBody(code, reason))
	h := headers.New()
	h.Set("Content-Type", "text/html; charset=utf-8")
	return c.writeResponse(&Response{Code: code, Reason: reason, Headers: h}, body, req.IsHeadRequest())
}

func (c *ServerConnection) sendSeeOther(req *Request, url string) error {
	h := headers.New()
	h.Set("Location", url)
	return c.writeResponse(&Response{Code: 302, Reason: herrors.ReasonPhrase(302), Headers: h}, nil, req.IsHeadRequest())
}

func (c *ServerConnection) sendListing(req *Request, entries []datasource.Entry) error {
	body := []byte(renderListing(entries))
	h := headers.New()
	h.Set("Content-Type", "text/html; charset=utf-8")
	return c.writeResponse(&Response{Code: 200, Reason: "OK", Headers: h}, body, req.IsHeadRequest())
}

func (c *ServerConnection) sendBuffer(req *Request, data []byte, info datasource.FileInfo, _needCopy bool) error {
	h := headers.New()
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	}
	if info.LastModified >= 0 {
		h.Set("Last-Modified", httpdate.Format(info.LastModified))
	}
	return c.writeResponse(&Response{Code: 200, Reason: "OK", Headers: h}, data, req.IsHeadRequest())
}

func (c *ServerConnection) sendDataSource(req *Request, ds datasource.DataSource) error {
	info := ds.Stat()
	h := headers.New()
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	}
	if info.LastModified >= 0 {
		h.Set("Last-Modified", httpdate.Format(info.LastModified))
	}
	resp := &Response{Code: 200, Reason: "OK", Headers: h}
	return c.writeStreamingResponse(resp, ds, req.IsHeadRequest())
}

// writeResponse sends a response backed by an in-memory buffer (or an
// empty body for redirects/errors).
func (c *ServerConnection) writeResponse(resp *Response, body []byte, headOnly bool) error {
	resp.Headers.Set("Content-Length", strconv.Itoa(len(body)))
	if err := c.writeHeadersOnly(resp); err != nil {
		return c.onSendError(err)
	}
	if !headOnly && len(body) > 0 {
		if _, err := c.bufWriter.Write(body); err != nil {
			return c.onSendError(err)
		}
	}
	return c.finishResponse(resp)
}

// writeStreamingResponse sends a response backed by a DataSource,
// streamed in ChunkSize chunks per spec.md §4.4 step 5. The source is
// closed on completion and on any send error, per spec.md §5.
func (c *ServerConnection) writeStreamingResponse(resp *Response, ds datasource.DataSource, headOnly bool) error {
	resp.Headers.Set("Content-Length", strconv.FormatInt(ds.Size(), 10))
	if err := c.writeHeadersOnly(resp); err != nil {
		ds.Close()
		return c.onSendError(err)
	}
	if headOnly {
		ds.Close()
		return c.finishResponse(resp)
	}

	buf := make([]byte, datasource.ChunkSize)
	var offset int64
	for {
		n, err := ds.Read(buf, offset)
		if n > 0 {
			if _, werr := c.bufWriter.Write(buf[:n]); werr != nil {
				ds.Close()
				return c.onSendError(werr)
			}
			offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			ds.Close()
			return c.onSendError(err)
		}
	}
	ds.Close()
	return c.finishResponse(resp)
}

// writeHeadersOnly writes the status line and headers common to every
// response: Date, Server, all user headers, and Connection: close when
// demanded, per spec.md §6, followed by the blank line that terminates
// the header block. Any body bytes are written by the caller afterward.
func (c *ServerConnection) writeHeadersOnly(resp *Response) error {
	reason := resp.Reason
	if reason == "" {
		reason = herrors.ReasonPhrase(resp.Code)
	}
	if _, err := c.bufWriter.WriteString("HTTP/1.1 " + strconv.Itoa(resp.Code) + " " + reason + "\r\n"); err != nil {
		return err
	}
	resp.Headers.Set("Date", httpdate.Format(-1))
	resp.Headers.Set("Server", c.serverName)
	if resp.Close {
		resp.Headers.Set("Connection", "close")
	}
	if err := resp.Headers.WriteTo(c.bufWriter); err != nil {
		return err
	}
	_, err := c.bufWriter.WriteString("\r\n")
	return err
}

func (c *ServerConnection) finishResponse(resp *Response) error {
	if err := c.bufWriter.Flush(); err != nil {
		return c.onSendError(err)
	}
	if resp.Close {
		c.state.Store(int32(connBusyClose))
	}
	if c.onResponse != nil {
		c.onResponse(statusClass(resp.Code))
	}
	return nil
}

func (c *ServerConnection) onSendError(err error) error {
	c.state.Store(int32(connBusyClose))
	c.log.Debugw("send error", "conn", c.id, "error", err)
	return err
}

func (c *ServerConnection) closeConn() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(connClosed))
		close(c.closed)
		c.netConn.Close()
		c.strand.Close()
		c.strandStop()
		c.fireAborter()
	})
}

// Close closes the connection from outside the FSM, used by the acceptor
// registry during Engine.Stop() drain.
func (c *ServerConnection) Close() { c.closeConn() }
