package engine

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralreef/httpengine/server"
)

func TestEngineServesStaticFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello engine"), 0o644))

	e := New()
	addr, err := e.Listen("tcp", "127.0.0.1:0", &server.StaticGenerator{Root: dir})
	require.NoError(t, err)
	require.NoError(t, e.StartServer(2))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(ctx)
	}()

	resp, err := http.Get("http://" + addr + "/hello.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello engine", string(body))
}

func TestEngineStartServerTwiceErrors(t *testing.T) {
	e := New()
	require.NoError(t, e.StartServer(1))
	assert.Error(t, e.StartServer(1))
	e.Stop(context.Background())
}

func TestEngineStartClientTwiceErrors(t *testing.T) {
	e := New()
	require.NoError(t, e.StartClient(1))
	assert.Error(t, e.StartClient(1))
	assert.NotNil(t, e.Fetcher())
	e.Stop(context.Background())
}

func TestEngineStopIsIdempotent(t *testing.T) {
	e := New()
	require.NoError(t, e.StartServer(1))
	ctx := context.Background()
	assert.NoError(t, e.Stop(ctx))
	assert.NoError(t, e.Stop(ctx))
}

func TestEngineListenAfterStopErrors(t *testing.T) {
	e := New()
	require.NoError(t, e.Stop(context.Background()))
	_, err := e.Listen("tcp", "127.0.0.1:0", &server.StaticGenerator{Root: t.TempDir()})
	assert.Error(t, err)
}
