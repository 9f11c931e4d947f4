package server

import (
	"sync/atomic"

	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/herrors"
)

// Sink is the server-side capability set of spec.md §3/§4.5: content,
// seeOther, listing, error, checkAborted, setAborter. Exactly one
// terminal operation (Content, ContentSource, SeeOther, Listing, or
// Error) may succeed per sink instance; later terminal calls are no-ops,
// per spec.md's "sinks are one-shot" invariant.
type Sink interface {
	// Content sends a 2xx response with an in-memory body.
	Content(data []byte, info datasource.FileInfo) error
	// ContentSource streams a 2xx response from a DataSource in
	// ChunkSize chunks.
	ContentSource(ds datasource.DataSource) error
	// SeeOther sends a 302 with Location: url.
	SeeOther(url string) error
	// Listing renders entries into an HTML index and sends it as a 2xx
	// text/html response.
	Listing(entries []datasource.Entry) error
	// Error maps err to a status response per spec.md §4.4's error
	// taxonomy table.
	Error(err error) error
	// CheckAborted returns herrors.Aborted() if the underlying
	// connection has finished (busyClose/closed); generators call it
	// cooperatively to cut long-running work short.
	CheckAborted() error
	// SetAborter installs cb to be invoked at most once if the
	// connection closes unilaterally while this sink is still live.
	SetAborter(cb func())
}

// httpSink is the concrete server-side Sink, bound to a live
// ServerConnection and the Request it is answering.
type httpSink struct {
	conn *ServerConnection
	req  *Request

	done atomic.Bool
}

func newHTTPSink(conn *ServerConnection, req *Request) *httpSink {
	return &httpSink{conn: conn, req: req}
}

// claim returns true exactly once per sink, implementing the one-shot
// terminal-operation invariant.
func (s *httpSink) claim() bool {
	return s.done.CompareAndSwap(false, true)
}

func (s *httpSink) Content(data []byte, info datasource.FileInfo) error {
	if !s.claim() {
		return nil
	}
	return s.conn.sendBuffer(s.req, data, info, false)
}

func (s *httpSink) ContentSource(ds datasource.DataSource) error {
	if !s.claim() {
		return nil
	}
	return s.conn.sendDataSource(s.req, ds)
}

func (s *httpSink) SeeOther(url string) error {
	if !s.claim() {
		return nil
	}
	return s.conn.sendSeeOther(s.req, url)
}

func (s *httpSink) Listing(entries []datasource.Entry) error {
	if !s.claim() {
		return nil
	}
	return s.conn.sendListing(s.req, entries)
}

func (s *httpSink) Error(err error) error {
	if !s.claim() {
		return nil
	}
	return s.conn.sendError(s.req, err)
}

func (s *httpSink) CheckAborted() error {
	if s.conn.finished() {
		return herrors.Aborted()
	}
	return nil
}

func (s *httpSink) SetAborter(cb func()) {
	s.conn.setAborter(cb)
}
