package client

import "github.com/coralreef/httpengine/datasource"

// Sink is the client-side capability set of spec.md §4.5: content,
// notModified, seeOther, error. Callbacks are consumed by the fetcher
// (or any direct caller of Dispatcher.Fetch).
type Sink interface {
	Content(data []byte, info datasource.FileInfo)
	NotModified()
	SeeOther(url string)
	Error(err error)
}

// SinkFuncs adapts plain functions to Sink, for callers that don't want
// to define a struct per call site.
type SinkFuncs struct {
	OnContent     func(data []byte, info datasource.FileInfo)
	OnNotModified func()
	OnSeeOther    func(url string)
	OnError       func(err error)
}

func (s SinkFuncs) Content(data []byte, info datasource.FileInfo) {
	if s.OnContent != nil {
		s.OnContent(data, info)
	}
}
func (s SinkFuncs) NotModified() {
	if s.OnNotModified != nil {
		s.OnNotModified()
	}
}
func (s SinkFuncs) SeeOther(url string) {
	if s.OnSeeOther != nil {
		s.OnSeeOther(url)
	}
}
func (s SinkFuncs) Error(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
