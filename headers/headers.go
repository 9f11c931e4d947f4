// Package headers implements the wire-level Header data model of spec.md
// §3: "(name: case-insensitive string, value: string). Ordered sequence;
// duplicates permitted." Grounded on badu-http/hdr's canonicalization
// rules (CanonicalHeaderKey), generalized from that package's
// map[string][]string storage to an ordered slice so arrival order and
// duplicate entries survive, as the spec requires and a plain Go map
// cannot provide.
package headers

import (
	"bufio"
	"strings"
)

// Field is a single (name, value) wire pair.
type Field struct {
	Name  string // canonical form, e.g. "Content-Type"
	Value string
}

// Header is an ordered sequence of header fields, case-insensitive on
// name, duplicates permitted.
type Header struct {
	fields []Field
}

// New returns an empty Header.
func New() *Header { return &Header{} }

// Add appends a (name, value) pair, canonicalizing name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: Canonical(name), Value: value})
}

// Set removes any existing entries for name and adds a single new one.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	name = Canonical(name)
	for _, f := range h.fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in arrival order.
func (h *Header) Values(name string) []string {
	name = Canonical(name)
	var out []string
	for _, f := range h.fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name has at least one value.
func (h *Header) Has(name string) bool {
	name = Canonical(name)
	for _, f := range h.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Del removes every entry for name.
func (h *Header) Del(name string) {
	name = Canonical(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Fields returns the raw ordered field list. The slice is owned by the
// caller; mutating it does not affect h.
func (h *Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Len returns the number of fields (spec.md's request.lines - 1, for a
// fully parsed request with a header block).
func (h *Header) Len() int { return len(h.fields) }

// WriteTo writes the header block in wire format, each line terminated
// by CRLF. Output never folds, per spec.md §6.
func (h *Header) WriteTo(w *bufio.Writer) error {
	for _, f := range h.fields {
		if _, err := w.WriteString(f.Name); err != nil {
			return err
		}
		if _, err := w.WriteString(": "); err != nil {
			return err
		}
		if _, err := w.WriteString(f.Value); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// Canonical rewrites name into canonical header form: each hyphen-
// separated segment is title-cased ("content-type" -> "Content-Type").
// Non-token bytes are passed through unchanged, same fallback badu-http's
// CanonicalHeaderKey uses for malformed input.
func Canonical(name string) string {
	if name == "" {
		return name
	}
	b := []byte(name)
	upper := true
	for i, c := range b {
		if c == '-' {
			upper = true
			continue
		}
		if upper {
			if c >= 'a' && c <= 'z' {
				b[i] = c - ('a' - 'A')
			}
		} else {
			if c >= 'A' && c <= 'Z' {
				b[i] = c + ('a' - 'A')
			}
		}
		upper = false
	}
	return string(b)
}

// EqualFold reports whether two header names are the same ignoring case,
// without allocating a canonical form.
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
