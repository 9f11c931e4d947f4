package server

import (
	"os"
	"strings"

	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/herrors"
)

// StaticGenerator serves files under Root via DataSource streaming, with
// directory listings for paths ending in "/". Grounded on
// original_source/http.cpp's default ContentGenerator (SPEC_FULL.md §4)
// and badu-http/filetransport's fileHandler, adapted to this engine's
// Sink/DataSource surface instead of a ResponseWriter.
type StaticGenerator struct {
	Root string
}

func (g *StaticGenerator) Serve(req *Request, sink Sink) error {
	rel := strings.TrimPrefix(req.URI, "/")

	if strings.HasSuffix(req.URI, "/") || req.URI == "" {
		entries, err := datasource.ListDir(g.Root, rel)
		if err != nil {
			if os.IsNotExist(err) {
				return herrors.NotFound("no such directory")
			}
			return herrors.Internal(err.Error())
		}
		return sink.Listing(entries)
	}

	full, err := datasource.SafeJoin(g.Root, rel)
	if err != nil {
		return herrors.Forbidden("path escapes root")
	}
	ds, err := datasource.OpenFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return herrors.NotFound("no such file")
		}
		return herrors.Internal(err.Error())
	}
	return sink.ContentSource(ds)
}
