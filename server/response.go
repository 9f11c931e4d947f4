package server

import "github.com/coralreef/httpengine/headers"

// Response is the wire response model of spec.md §3. Default code is
// 200, per spec.md.
type Response struct {
	Code    int
	Headers *headers.Header
	Reason  string
	// Close forces connection termination after this response is sent.
	Close bool
}

// NewResponse returns a Response defaulted to 200 OK with empty headers.
func NewResponse() *Response {
	return &Response{Code: 200, Headers: headers.New()}
}
