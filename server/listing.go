package server

import (
	"html"
	"sort"
	"strings"

	"github.com/coralreef/httpengine/datasource"
)

// renderListing builds the minimal directory-index HTML spec.md §6
// describes: entries sorted ascending by name, a leading "../", files and
// subdirectories distinguished by a trailing slash.
func renderListing(entries []datasource.Entry) string {
	sorted := make([]datasource.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString("<html><head><title>Index</title></head><body><pre>\n")
	b.WriteString(`<a href="../">../</a>` + "\n")
	for _, e := range sorted {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		escaped := html.EscapeString(name)
		b.WriteString(`<a href="` + escaped + `">` + escaped + "</a>\n")
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}
