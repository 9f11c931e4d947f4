package datasource

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileAndRead(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))

	ds, err := OpenFile(p)
	require.NoError(t, err)
	defer ds.Close()

	assert.EqualValues(t, 11, ds.Size())
	assert.Equal(t, "hello.txt", ds.Name())

	buf := make([]byte, 5)
	n, err := ds.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = ds.Read(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	_, err = ds.Read(buf, 11)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFile(dir)
	assert.Error(t, err)
}

func TestSafeJoinNeutralizesTraversal(t *testing.T) {
	root := t.TempDir()
	// The leading-slash rooting trick collapses ".." above root, so this
	// resolves to a path under root that doesn't exist rather than
	// escaping it or erroring outright.
	joined, err := SafeJoin(root, "../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(joined, root+string(filepath.Separator)))
	rel, err := filepath.Rel(root, joined)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))

	ok, err := SafeJoin(root, "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), ok)
}

func TestListDirSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	entries, err := ListDir(dir, "")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)
}
