// Package cachecontrol implements the small pragmatic Cache-Control
// subset spec.md §4.6 requires for client consumers (not full RFC 7234
// semantics, which is an explicit Non-goal). Ground truth for precedence
// is spec.md §4.6 itself since original_source/ does not carry this
// parser in the excerpted files.
package cachecontrol

import (
	"strconv"
	"strings"
)

// Unspecified is the sentinel maxAge/expires value meaning "no directive
// applied", matching FileInfo's cacheUnspecified sentinel in spec.md §3.
const Unspecified = -1

// MustRevalidate is the sentinel maxAge value for a must-revalidate
// directive, per spec.md §3/§4.6.
const MustRevalidate = -2

// Directives is the result of parsing one Cache-Control header value.
type Directives struct {
	MaxAge int64 // Unspecified, MustRevalidate, or a non-negative age in seconds
}

// Parse tokenizes value in a relaxed, case-insensitive streaming form and
// resolves the maxAge per the precedence table in spec.md §4.6:
//
//	private            -> maxAge = 0
//	no-cache            -> maxAge = 0
//	must-revalidate     -> maxAge = MustRevalidate
//	s-maxage=N (N>=0)   -> maxAge = N
//	max-age=N  (N>=0)   -> maxAge = N
//	(none of the above) -> Unspecified
//
// Tokens are scanned left to right and a higher-precedence token wins
// over a lower-precedence one whatever their order; this matches the
// documented behavior for "public, no-cache" (§9's Open Question: the
// ambiguous original leaks `public` into the next branch without an
// else, landing on no-cache semantics). When the same directive appears
// more than once, the last valid occurrence wins.
func Parse(value string) Directives {
	d := Directives{MaxAge: Unspecified}
	rank := -1 // tracks the precedence of the directive currently winning

	set := func(newRank int, maxAge int64) {
		if newRank >= rank {
			rank = newRank
			d.MaxAge = maxAge
		}
	}

	for _, rawTok := range strings.Split(value, ",") {
		tok := strings.TrimSpace(rawTok)
		if tok == "" {
			continue
		}
		name, arg, hasArg := strings.Cut(tok, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		arg = strings.TrimSpace(strings.Trim(arg, `"`))

		switch {
		case name == "private":
			set(5, 0)
		case name == "no-cache":
			set(4, 0)
		case name == "must-revalidate":
			set(3, MustRevalidate)
		case name == "s-maxage" && hasArg:
			if n, err := strconv.ParseInt(arg, 10, 64); err == nil && n >= 0 {
				set(2, n)
			}
		case name == "max-age" && hasArg:
			if n, err := strconv.ParseInt(arg, 10, 64); err == nil && n >= 0 {
				set(1, n)
			}
		}
	}
	return d
}
