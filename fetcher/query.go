// Package fetcher implements spec.md §4.8: the ResourceFetcher fan-out
// layer that turns a batch of queries into one rendezvous completion.
package fetcher

import (
	"time"

	"github.com/coralreef/httpengine/datasource"
)

// Query is spec.md §4.8's per-URL fetch descriptor. Callers implement
// Query (or embed *BaseQuery) to receive the fetcher's setter calls.
type Query interface {
	Location() string
	Timeout() time.Duration
	Reuse() bool

	Set(lastModified, expires int64, data []byte, size int64, contentType string)
	SetError(err error)
	SetRedirect(url string)
}

// BaseQuery is a ready-to-embed Query implementation recording the
// outcome of one sub-fetch, for callers that just want the populated
// slot rather than their own callbacks.
type BaseQuery struct {
	URL            string
	RequestTimeout time.Duration
	ReuseConn      bool

	// Populated by the fetcher on completion.
	LastModified int64
	Expires      int64
	Data         []byte
	Size         int64
	ContentType  string
	Err          error
	RedirectURL  string
}

func (q *BaseQuery) Location() string       { return q.URL }
func (q *BaseQuery) Timeout() time.Duration { return q.RequestTimeout }
func (q *BaseQuery) Reuse() bool            { return q.ReuseConn }

func (q *BaseQuery) Set(lastModified, expires int64, data []byte, size int64, contentType string) {
	q.LastModified = lastModified
	q.Expires = expires
	q.Data = data
	q.Size = size
	q.ContentType = contentType
}

func (q *BaseQuery) SetError(err error) { q.Err = err }

func (q *BaseQuery) SetRedirect(url string) { q.RedirectURL = url }

// MultiQuery is an ordered batch of Query completing as a unit, per
// spec.md §4.8.
type MultiQuery []Query

// Done is invoked exactly once per MultiQuery submitted to Fetch, per
// spec.md's testable property: "Done fires exactly once, with all N
// sub-query slots populated."
type Done func(MultiQuery)

// setFromFileInfo adapts a datasource.FileInfo into the scalar args a
// Query.Set expects.
func setFromFileInfo(q Query, data []byte, info datasource.FileInfo) {
	q.Set(info.LastModified, info.Expires, data, int64(len(data)), info.ContentType)
}
