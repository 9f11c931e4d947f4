package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherFetchWithZeroWorkersErrors(t *testing.T) {
	d := &Dispatcher{}
	err := d.Fetch("http://example.invalid/", newRecordingSink(), DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, errNoWorkers, err)
}

func TestDispatcherRoundRobinsAcrossWorkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDispatcher(3, nil, time.Second, 0, nil, nil)
	defer d.Stop()

	require.Len(t, d.workers, 3)
	assert.Equal(t, 0, d.next)

	for i := 0; i < 6; i++ {
		sink := newRecordingSink()
		require.NoError(t, d.Fetch(srv.URL+"/", sink, DefaultOptions()))
		sink.wait(t)
	}

	// six fetches over three workers wraps the iterator back to 0.
	assert.Equal(t, 0, d.next)
}

func TestDispatcherRedirectFollowing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("landed"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDispatcher(1, nil, time.Second, 0, nil, nil)
	defer d.Stop()

	opts := DefaultOptions()
	opts.FollowRedirects = true
	sink := newRecordingSink()
	require.NoError(t, d.Fetch(srv.URL+"/start", sink, opts))
	sink.wait(t)

	assert.Equal(t, "landed", string(sink.data))
}

func TestDispatcherNoFollowRedirectsSurfacesSeeOther(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDispatcher(1, nil, time.Second, 0, nil, nil)
	defer d.Stop()

	opts := DefaultOptions()
	opts.FollowRedirects = false
	sink := newRecordingSink()
	require.NoError(t, d.Fetch(srv.URL+"/start", sink, opts))
	sink.wait(t)

	assert.NotEmpty(t, sink.seeOther)
}

func TestOnDemandDispatcherDefersWorkerCreation(t *testing.T) {
	o := NewOnDemandDispatcher(2, nil, time.Second, 0, nil, nil)
	defer o.Stop()
	assert.Nil(t, o.dispatcher)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	sink := newRecordingSink()
	require.NoError(t, o.Fetch(srv.URL+"/", sink, DefaultOptions()))
	sink.wait(t)

	assert.NotNil(t, o.dispatcher)
}
