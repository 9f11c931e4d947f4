// Package server implements spec.md §4.3–§4.5: the Acceptor, the
// per-connection ServerConnection finite-state machine, the sink
// surface, and the ContentGenerator plug-in point. Grounded on
// badu-http's conn.go / types_server.go request-parsing and
// response-emission shape, generalized from net/http's single-request
// blocking model to the explicit pipelined request queue spec.md §4.4
// names.
package server

import "github.com/coralreef/httpengine/headers"

// RequestState is the lifecycle of a parsed Request, per spec.md §3.
type RequestState int

const (
	StateReading RequestState = iota
	StateReady
	StateBroken
)

// Request is the wire request model of spec.md §3.
type Request struct {
	Method  string
	URI     string
	Version string
	Headers *headers.Header
	Lines   int // count of lines parsed, for diagnostics
	State   RequestState
	// BrokenReason holds the parse failure description when State is
	// StateBroken, used to build the 400 response body/reason.
	BrokenReason string
}

func newRequest() *Request {
	return &Request{
		Version: "HTTP/1.1",
		Headers: headers.New(),
		State:   StateReading,
	}
}

// IsHeadRequest reports whether the request method is HEAD, which
// suppresses the response body per spec.md §4.4 step 5.
func (r *Request) IsHeadRequest() bool { return r.Method == "HEAD" }
