package server

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/herrors"
	"github.com/coralreef/httpengine/reactor"
)

func startTestConn(t *testing.T, gen ContentGenerator) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	pool := reactor.NewPool("test", 2, nil)
	t.Cleanup(pool.Stop)
	conn := NewServerConnection(server, gen, "test/1.0", 0, pool, nil)
	go conn.Serve()
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGet200InMemory(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		assert.Equal(t, "/x", req.URI)
		return sink.Content([]byte("hello"), datasource.FileInfo{
			ContentType:  "text/plain",
			LastModified: 1700000000,
			Expires:      datasource.CacheUnspecified,
		})
	})
	client := startTestConn(t, gen)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /x HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := httputil.DumpResponse(resp, true)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.Contains(t, string(body), "hello")
}

func TestHeadSuppressesBody(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		return sink.Content([]byte("hello"), datasource.FileInfo{ContentType: "text/plain", LastModified: -1})
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("HEAD /x HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
}

func TestGeneratorThrowsNotFound(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		return herrors.NotFound("missing")
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /m HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPipelinedGets(t *testing.T) {
	bodies := map[string]string{"/a": "A", "/b": "BB", "/c": "CCC"}
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		return sink.Content([]byte(bodies[req.URI]), datasource.FileInfo{ContentType: "text/plain", LastModified: -1})
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))

	req := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n" +
		"GET /b HTTP/1.1\r\nHost: x\r\n\r\n" +
		"GET /c HTTP/1.1\r\nHost: x\r\n\r\n"
	_, err := client.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(client)
	for _, path := range []string{"/a", "/b", "/c"} {
		resp, err := http.ReadResponse(reader, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, bodies[path], string(body))
	}
}

func TestBrokenHeaderFoldWithoutPredecessor(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		t.Fatal("generator must not run for a broken request")
		return nil
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /x HTTP/1.1\r\n continuation\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestEmptyLeadingLineSkipped(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		return sink.Content([]byte("ok"), datasource.FileInfo{LastModified: -1})
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("\r\nGET /x HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestNotAllowedMethod(t *testing.T) {
	gen := ContentGeneratorFunc(func(req *Request, sink Sink) error {
		t.Fatal("generator must not run for disallowed method")
		return nil
	})
	client := startTestConn(t, gen)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("POST /x HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, 405, resp.StatusCode)
}
