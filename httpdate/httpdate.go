// Package httpdate formats and parses the RFC 7231 "IMF-fixdate" used in
// the Date, Last-Modified and If-Modified-Since headers, per spec.md §4.9.
//
// Grounded on badu-http/types_server.go's TimeFormat constant
// ("Mon, 02 Jan 2006 15:04:05 GMT"); this package just gives that format a
// home, relying on the time package's English weekday/month names, so -1
// ("now") and round-tripping are first-class instead of implicit in caller
// code.
package httpdate

import "time"

// Layout is the Go reference-time layout for an HTTP-date.
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Format renders t (interpreted as Unix seconds) as an HTTP-date. A
// negative t means "now", per spec.md §4.9.
func Format(epochSeconds int64) string {
	var t time.Time
	if epochSeconds < 0 {
		t = time.Now()
	} else {
		t = time.Unix(epochSeconds, 0)
	}
	return t.UTC().Format(Layout)
}

// FormatTime renders t directly, for callers that already hold a time.Time.
func FormatTime(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse parses an HTTP-date back into Unix seconds. RFC 7231 also allows
// RFC 850 and ANSI C asctime forms on input for compatibility; this engine
// only ever emits and consumes the IMF-fixdate form itself, so only that
// layout is accepted here.
func Parse(value string) (int64, error) {
	t, err := time.Parse(Layout, value)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
