package server

import (
	"fmt"
	"html"

	"github.com/coralreef/httpengine/herrors"
)

// errorBody renders the static HTML body spec.md §6 requires for an
// error status: "≤ 200 bytes, Content-Type: text/html; charset=utf-8".
// reason is the short textual reason to embed, e.g. an exception message;
// when embedding it would exceed 200 bytes, the standard reason phrase is
// used in its place.
func errorBody(code int, reason string) string {
	const format = "<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>"
	body := fmt.Sprintf(format, code, herrors.ReasonPhrase(code), code, html.EscapeString(reason))
	if len(body) > 200 {
		body = fmt.Sprintf(format, code, herrors.ReasonPhrase(code), code, herrors.ReasonPhrase(code))
	}
	return body
}
