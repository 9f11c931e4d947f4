package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/herrors"
)

type recordingSink struct {
	content []byte
	info    datasource.FileInfo
	entries []datasource.Entry
	erred   error
}

func (s *recordingSink) Content(data []byte, info datasource.FileInfo) error {
	s.content, s.info = data, info
	return nil
}
func (s *recordingSink) ContentSource(ds datasource.DataSource) error {
	buf := make([]byte, ds.Size())
	ds.Read(buf, 0)
	s.content = buf
	s.info = ds.Stat()
	ds.Close()
	return nil
}
func (s *recordingSink) SeeOther(url string) error                { return nil }
func (s *recordingSink) Listing(entries []datasource.Entry) error { s.entries = entries; return nil }
func (s *recordingSink) Error(err error) error                    { s.erred = err; return nil }
func (s *recordingSink) CheckAborted() error                      { return nil }
func (s *recordingSink) SetAborter(cb func())                     {}

func TestStaticGeneratorServesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("abc"), 0o644))

	g := &StaticGenerator{Root: dir}
	sink := &recordingSink{}
	err := g.Serve(&Request{URI: "/f.txt", Method: "GET"}, sink)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(sink.content))
}

func TestStaticGeneratorRejectsTraversal(t *testing.T) {
	// Path cleaning neutralizes ".." above a rooted "/", so a traversal
	// attempt never escapes Root; it resolves to a path under Root that
	// doesn't exist, not to a file outside Root.
	dir := t.TempDir()
	g := &StaticGenerator{Root: dir}
	sink := &recordingSink{}
	err := g.Serve(&Request{URI: "/../../etc/passwd", Method: "GET"}, sink)
	var he *herrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, herrors.KindNotFound, he.Kind)
}

func TestStaticGeneratorListsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	g := &StaticGenerator{Root: dir}
	sink := &recordingSink{}
	err := g.Serve(&Request{URI: "/", Method: "GET"}, sink)
	require.NoError(t, err)
	assert.Len(t, sink.entries, 1)
}
