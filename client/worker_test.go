package client

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralreef/httpengine/datasource"
)

type recordingSink struct {
	mu           sync.Mutex
	contentCalls int
	data         []byte
	info         datasource.FileInfo
	notModified  bool
	seeOther     string
	err          error
	done         chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{}, 1)}
}

func (s *recordingSink) Content(data []byte, info datasource.FileInfo) {
	s.mu.Lock()
	s.contentCalls++
	s.data = data
	s.info = info
	s.mu.Unlock()
	s.done <- struct{}{}
}
func (s *recordingSink) NotModified() {
	s.mu.Lock()
	s.notModified = true
	s.mu.Unlock()
	s.done <- struct{}{}
}
func (s *recordingSink) SeeOther(url string) {
	s.mu.Lock()
	s.seeOther = url
	s.mu.Unlock()
	s.done <- struct{}{}
}
func (s *recordingSink) Error(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sink callback")
	}
}

func TestWorkerFetchesContentSuccessfully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	w := NewWorker("chttp:test", nil, time.Second, 0, nil, nil)
	defer w.Stop()

	sink := newRecordingSink()
	w.Post(srv.URL+"/path", sink, DefaultOptions())
	sink.wait(t)

	assert.Equal(t, 1, sink.contentCalls)
	assert.Equal(t, "hello world", string(sink.data))
	assert.Equal(t, "text/plain", sink.info.ContentType)
}

func TestWorkerSurfaces404AsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	w := NewWorker("chttp:test", nil, time.Second, 0, nil, nil)
	defer w.Stop()

	sink := newRecordingSink()
	w.Post(srv.URL+"/missing", sink, DefaultOptions())
	sink.wait(t)

	require.Error(t, sink.err)
}

func TestWorkerPostAfterStopErrors(t *testing.T) {
	w := NewWorker("chttp:test", nil, time.Second, 0, nil, nil)
	w.Stop()

	sink := newRecordingSink()
	w.Post("http://example.invalid/", sink, DefaultOptions())
	sink.wait(t)

	assert.Equal(t, errWorkerStopped, sink.err)
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w := NewWorker("chttp:test", nil, time.Second, 0, nil, nil)
	assert.NotPanics(t, func() {
		w.Stop()
		w.Stop()
	})
}
