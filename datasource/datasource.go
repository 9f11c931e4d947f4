// Package datasource implements spec.md §3's DataSource abstraction: a
// pull-based byte source streamed by the server in fixed-size chunks, plus
// FileInfo metadata (content type, last-modified, expires sentinels).
//
// Grounded on badu-http/filetransport's FileSystem/File/fileHandler shape
// (types.go, file_handler.go, file_transport.go), generalized from "serve
// this os.File" to the spec's explicit pull interface
// (stat/size/read/name/close) so a ServerConnection can own the
// chunk-by-chunk send loop itself instead of delegating to a
// ResponseWriter.
package datasource

import (
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Cache-control sentinels from spec.md §3.
const (
	CacheUnspecified  = -1
	MustRevalidate    = -2
	LastModifiedUnset = -1
)

// FileInfo carries the metadata the server needs to build response
// headers for a streamed body.
type FileInfo struct {
	ContentType  string
	LastModified int64 // epoch seconds; < 0 means unknown
	Expires      int64 // epoch seconds, or CacheUnspecified / MustRevalidate
}

// DataSource is the abstract pull-based byte source of spec.md §3.
// Ownership is shared between the caller and the streaming response
// sender; Close is called exactly once, on completion or abort.
type DataSource interface {
	Stat() FileInfo
	Size() int64
	Read(buf []byte, offset int64) (int, error)
	Name() string
	Close() error
}

// ChunkSize is the fixed streaming chunk size spec.md §4.4 names (64 KiB).
const ChunkSize = 64 * 1024

// fileSource adapts an *os.File to DataSource.
type fileSource struct {
	f    *os.File
	name string
	info FileInfo
	size int64
}

// OpenFile stats and opens path, returning a DataSource ready to stream.
// lastModified is taken from the file's mtime; contentType is sniffed
// from the file extension via mime.TypeByExtension, falling back to
// application/octet-stream, the same default spec.md §8 requires of the
// client when a peer omits Content-Type.
func OpenFile(path string) (DataSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, errors.New("datasource: is a directory")
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &fileSource{
		f:    f,
		name: filepath.Base(path),
		size: st.Size(),
		info: FileInfo{
			ContentType:  ct,
			LastModified: st.ModTime().Unix(),
			Expires:      CacheUnspecified,
		},
	}, nil
}

func (fs *fileSource) Stat() FileInfo { return fs.info }
func (fs *fileSource) Size() int64    { return fs.size }
func (fs *fileSource) Name() string   { return fs.name }
func (fs *fileSource) Close() error   { return fs.f.Close() }

func (fs *fileSource) Read(buf []byte, offset int64) (int, error) {
	n, err := fs.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, err
	}
	if n == 0 && err == io.EOF {
		return 0, io.EOF
	}
	return n, nil
}

// Entry describes one directory-listing row for Sink.Listing, per spec.md
// §4.5/§6: entries are sorted ascending by name; a trailing slash marks a
// subdirectory.
type Entry struct {
	Name  string
	IsDir bool
}

// ListDir reads dir's immediate children as Entry values sorted ascending
// by name. relPath is resolved through SafeJoin, so ".." segments cannot
// climb above root (original_source/http.cpp's default ContentGenerator
// guards against path traversal before ever stat-ing a path; see
// SPEC_FULL.md §4).
func ListDir(root, relPath string) ([]Entry, error) {
	full, err := SafeJoin(root, relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{Name: info.Name(), IsDir: info.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// SafeJoin joins root and relPath, per SPEC_FULL.md §4's supplemented
// static-file traversal check. relPath is first cleaned as if rooted at
// "/", so ".." segments that would climb above root are dropped and the
// result stays under root ("../../etc/passwd" becomes root/etc/passwd).
// A joined path that still cannot be expressed relative to root is
// rejected with an error.
func SafeJoin(root, relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath)
	full := filepath.Join(root, cleaned)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("datasource: path escapes root")
	}
	return full, nil
}
