package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Server.Threads)
	assert.Equal(t, 300, cfg.DNS.TTLSeconds)
	assert.Equal(t, 10, cfg.Client.MaxRedirects)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: "127.0.0.1"
  port: 9090
  threads: 8
client:
  threads: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Server.Threads)
	assert.Equal(t, 2, cfg.Client.Threads)
	// untouched defaults survive the merge.
	assert.Equal(t, 300, cfg.DNS.TTLSeconds)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoadRejectsInvalidTunables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  threads: 0
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaults()
	assert.Equal(t, "5m0s", cfg.DNSTTL().String())
	assert.Equal(t, "30s", cfg.ClientDefaultTimeout().String())
}
